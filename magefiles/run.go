//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed in a window with the configuration in karma.toml.
func (Run) Engine() error {
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "karma.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the testbed on the headless backend for a fixed number of frames.
func (Run) Headless() error {
	fmt.Println("Run headless engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "karma.toml", "-backend", "headless", "-frames", "600"), withStream()); err != nil {
		return err
	}
	return nil
}

type Test mg.Namespace

// Runs every unit test with the race detector.
func (Test) Unit() error {
	if _, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
