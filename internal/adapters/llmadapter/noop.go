/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package llmadapter

import "context"

// NoopAdapter always fails with ErrDisabled. It backs safeMode=true,
// where the scheduler must never let an agentic investigation reach
// this far — but every call site still defends against it directly.
type NoopAdapter struct{}

func (NoopAdapter) Complete(ctx context.Context, prompt string, schema []byte) (string, error) {
	return "", ErrDisabled
}
