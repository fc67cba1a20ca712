package main

import (
	"fmt"

	"github.com/ventoy/vbdgo/internal/env"
)

func main() {
	printBanner()

	_ = Execute()
}

func printBanner() {
	fmt.Println(" __   __ ___ ___  ")
	fmt.Println(" \\ \\ / /| _ )   \\ ")
	fmt.Println("  \\ V / | _ \\ |) |")
	fmt.Println("   \\_/  |___/___/ ")
	fmt.Println()
	fmt.Println("Virtual boot device inspector")
	fmt.Println()
	fmt.Printf("Version:    %s\n", env.Version)
	fmt.Printf("Commit:     %s\n", env.CommitHash)
	fmt.Printf("Build Time: %s\n", env.BuildTime)
	fmt.Println()
}
