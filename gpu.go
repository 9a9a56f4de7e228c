package gcnasm

import "strings"

// GPUArchitecture is a GCN generation. Device codenames map many-to-one
// onto this enum; backends and the encoder/decoder collaborator key
// their behavior off it rather than off individual device names.
type GPUArchitecture int

const (
	ArchGCN1_0 GPUArchitecture = iota
	ArchGCN1_1
	ArchGCN1_2
	ArchGCN1_4
	ArchGCN1_4_1
)

func (a GPUArchitecture) String() string {
	switch a {
	case ArchGCN1_0:
		return "GCN1.0"
	case ArchGCN1_1:
		return "GCN1.1"
	case ArchGCN1_2:
		return "GCN1.2"
	case ArchGCN1_4:
		return "GCN1.4"
	case ArchGCN1_4_1:
		return "GCN1.4.1"
	default:
		return "unknown"
	}
}

// GPUDevice is a closed enumeration of supported device codenames.
type GPUDevice int

const (
	DeviceCapeVerde GPUDevice = iota
	DevicePitcairn
	DeviceTahiti
	DeviceOland
	DeviceBonaire
	DeviceSpectre
	DeviceSpooky
	DeviceKalindi
	DeviceHainan
	DeviceHawaii
	DeviceIceland
	DeviceTonga
	DeviceFiji
	DeviceCarrizo
	DeviceStoney
	DeviceEllesmere
	DeviceBaffin
	DeviceGoose
	DeviceHorse
	DeviceVegaM
	DeviceVega10
	DeviceVega12
	DeviceVega20
	DeviceRaven
)

type deviceInfo struct {
	canonical string
	arch      GPUArchitecture
	aliases   []string
}

// deviceTable is immutable static data: no process-wide mutable state,
// built once and never written to after init.
var deviceTable = map[GPUDevice]deviceInfo{
	DeviceCapeVerde: {"CapeVerde", ArchGCN1_0, []string{"cape verde"}},
	DevicePitcairn:  {"Pitcairn", ArchGCN1_0, nil},
	DeviceTahiti:    {"Tahiti", ArchGCN1_0, nil},
	DeviceOland:     {"Oland", ArchGCN1_0, nil},
	DeviceBonaire:   {"Bonaire", ArchGCN1_1, nil},
	DeviceSpectre:   {"Spectre", ArchGCN1_1, nil},
	DeviceSpooky:    {"Spooky", ArchGCN1_1, nil},
	DeviceKalindi:   {"Kalindi", ArchGCN1_1, nil},
	DeviceHainan:    {"Hainan", ArchGCN1_0, nil},
	DeviceHawaii:    {"Hawaii", ArchGCN1_1, nil},
	DeviceIceland:   {"Iceland", ArchGCN1_2, []string{"topaz"}},
	DeviceTonga:     {"Tonga", ArchGCN1_2, nil},
	DeviceFiji:      {"Fiji", ArchGCN1_2, nil},
	DeviceCarrizo:   {"Carrizo", ArchGCN1_2, nil},
	DeviceStoney:    {"Stoney", ArchGCN1_2, []string{"stoney ridge"}},
	DeviceEllesmere: {"Ellesmere", ArchGCN1_2, []string{"polaris10"}},
	DeviceBaffin:    {"Baffin", ArchGCN1_2, []string{"polaris11"}},
	DeviceGoose:     {"Goose", ArchGCN1_2, []string{"polaris12"}},
	DeviceHorse:     {"Horse", ArchGCN1_2, nil},
	DeviceVegaM:     {"VegaM", ArchGCN1_2, nil},
	DeviceVega10:    {"Vega10", ArchGCN1_4, []string{"vega"}},
	DeviceVega12:    {"Vega12", ArchGCN1_4, nil},
	DeviceVega20:    {"Vega20", ArchGCN1_4_1, nil},
	DeviceRaven:     {"Raven", ArchGCN1_4, []string{"raven ridge"}},
}

var deviceByName map[string]GPUDevice

func init() {
	deviceByName = make(map[string]GPUDevice, len(deviceTable)*2)
	for dev, info := range deviceTable {
		deviceByName[strings.ToLower(info.canonical)] = dev
		for _, alias := range info.aliases {
			deviceByName[strings.ToLower(alias)] = dev
		}
	}
}

// ParseDevice resolves a device codename, case-insensitively and
// accepting the aliases registered in deviceTable.
func ParseDevice(name string) (GPUDevice, bool) {
	dev, ok := deviceByName[strings.ToLower(strings.TrimSpace(name))]
	return dev, ok
}

// Architecture returns the GCN generation implemented by a device.
func (d GPUDevice) Architecture() GPUArchitecture {
	return deviceTable[d].arch
}

func (d GPUDevice) String() string {
	if info, ok := deviceTable[d]; ok {
		return info.canonical
	}
	return "unknown"
}

// DriverVersion packs a major/minor driver version the way the
// assembler stores it throughout: major*100+minor, so that all
// version-gated behavior compares against a single integer rather
// than scattering (major, minor) pairs. See config.Policies for the
// table that keys off this value.
type DriverVersion int

// MakeDriverVersion packs a (major, minor) pair.
func MakeDriverVersion(major, minor int) DriverVersion {
	return DriverVersion(major*100 + minor)
}

// LLVMVersion packs the LLVM compiler version a kernel was built
// against as major*10000+minor*100+patch, so Gallium/ROCm's
// "LLVM>=X.Y" feature gates compare against a single integer.
type LLVMVersion int

// MakeLLVMVersion packs a (major, minor, patch) triple.
func MakeLLVMVersion(major, minor, patch int) LLVMVersion {
	return LLVMVersion(major*10000 + minor*100 + patch)
}

// AtLeast reports whether v is at least major.minor.
func (v LLVMVersion) AtLeast(major, minor int) bool {
	return v >= MakeLLVMVersion(major, minor, 0)
}
