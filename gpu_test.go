// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcnasm

import "testing"

func TestGPUArchitectureString(t *testing.T) {
	cases := map[GPUArchitecture]string{
		ArchGCN1_0:            "GCN1.0",
		ArchGCN1_1:            "GCN1.1",
		ArchGCN1_2:            "GCN1.2",
		ArchGCN1_4:            "GCN1.4",
		ArchGCN1_4_1:          "GCN1.4.1",
		GPUArchitecture(9999): "unknown",
	}
	for arch, want := range cases {
		if got := arch.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(arch), got, want)
		}
	}
}

func TestParseDeviceCaseInsensitiveAndAliases(t *testing.T) {
	dev, ok := ParseDevice("TAHITI")
	if !ok || dev != DeviceTahiti {
		t.Fatalf("ParseDevice(TAHITI) = %v, %v", dev, ok)
	}
	dev, ok = ParseDevice("polaris10")
	if !ok || dev != DeviceEllesmere {
		t.Fatalf("ParseDevice(polaris10) = %v, %v, want DeviceEllesmere", dev, ok)
	}
	if _, ok := ParseDevice("not-a-device"); ok {
		t.Error("ParseDevice should fail on an unknown name")
	}
}

func TestDeviceArchitecture(t *testing.T) {
	if got := DeviceFiji.Architecture(); got != ArchGCN1_2 {
		t.Errorf("DeviceFiji.Architecture() = %v, want ArchGCN1_2", got)
	}
	if got := DeviceVega20.Architecture(); got != ArchGCN1_4_1 {
		t.Errorf("DeviceVega20.Architecture() = %v, want ArchGCN1_4_1", got)
	}
}

func TestDriverVersionPacking(t *testing.T) {
	v := MakeDriverVersion(21, 50)
	if v != 2150 {
		t.Errorf("MakeDriverVersion(21, 50) = %d, want 2150", v)
	}
}

func TestLLVMVersionAtLeast(t *testing.T) {
	v := MakeLLVMVersion(4, 0, 0)
	if !v.AtLeast(4, 0) {
		t.Error("4.0.0 should be at least 4.0")
	}
	if v.AtLeast(4, 1) {
		t.Error("4.0.0 should not be at least 4.1")
	}
	if !v.AtLeast(3, 9) {
		t.Error("4.0.0 should be at least 3.9")
	}
}
