/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package cluster

import "errors"

// ErrUnavailable means the cluster could not be reached at all.
var ErrUnavailable = errors.New("adapter_unavailable")

// ErrTimeout means the call exceeded its deadline.
var ErrTimeout = errors.New("adapter_timeout")
