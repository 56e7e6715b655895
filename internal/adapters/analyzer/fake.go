/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package analyzer

import "context"

// Fake is a scriptable Adapter for tests.
type Fake struct {
	Diagnostics []Diagnostic
	Err         error
	Delay       func(ctx context.Context) error // simulates a slow adapter for timeout tests
}

func (f *Fake) Scan(ctx context.Context, namespace string) ([]Diagnostic, error) {
	if f.Delay != nil {
		if err := f.Delay(ctx); err != nil {
			return nil, err
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Diagnostics, nil
}
