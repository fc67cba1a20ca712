package uefi

// This file documents where a real UEFI build would bind Firmware's
// methods across cgo to the platform's EFI_BOOT_SERVICES table
// (InstallProtocolInterface, EFI_RAM_DISK_PROTOCOL.Register,
// ConnectController, StartImage, RuntimeServices.SetVariable). No such
// build exists in this tree: there is no EDK2 toolchain in the examples
// this runtime is grounded on, and without real boot-services pointers to
// bind against, a cgo shim here would just be hand-written stub data
// masquerading as firmware access. Fake in fake.go is the supported way
// to exercise this package.
