// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package outcome classifies upstream responses into the three logical
// execution statuses recorded by the telemetry store.
package outcome

import "net/http"

// Status is the logical result of one upstream call. The numeric values are
// part of the storage format (event members embed them) and must not change.
type Status int

const (
	Success Status = 1
	BizFail Status = 2
	SysFail Status = 3
)

// ResponseCodeHeader carries the upstream's business status. A value other
// than "1" marks a business failure even on HTTP 200.
const ResponseCodeHeader = "x-response-code"

// Classify derives the status from the upstream HTTP status code and the
// business response-code header. An absent header counts as success.
func Classify(httpStatus int, responseCode string) Status {
	if httpStatus != http.StatusOK {
		return SysFail
	}
	if responseCode != "" && responseCode != "1" {
		return BizFail
	}
	return Success
}

// FromResponse is a convenience wrapper over Classify for *http.Response.
func FromResponse(resp *http.Response) Status {
	return Classify(resp.StatusCode, resp.Header.Get(ResponseCodeHeader))
}

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case BizFail:
		return "biz_fail"
	case SysFail:
		return "sys_fail"
	default:
		return "unknown"
	}
}
