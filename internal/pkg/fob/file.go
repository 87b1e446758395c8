// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package fob

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// FileName is the name of the unit list file in a group directory
const FileName = "fobs.json"

// WriteFile writes an ordered unit list as newline-delimited JSON, one
// descriptor per line. The format is append-friendly and readable by external
// tools one unit at a time.
func WriteFile(path string, descriptors []Descriptor) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range descriptors {
		if err := enc.Encode(&descriptors[i]); err != nil {
			return fmt.Errorf("unable to encode unit %s: %w", descriptors[i].Name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads an ordered unit list written by WriteFile, preserving
// declaration order.
func ReadFile(path string) ([]Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer f.Close()

	var descriptors []Descriptor
	dec := json.NewDecoder(f)
	for dec.More() {
		var d Descriptor
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("unable to decode unit list %s: %w", path, err)
		}
		if d.Name == "" {
			return nil, fmt.Errorf("unit list %s contains a unit without a name", path)
		}
		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}
