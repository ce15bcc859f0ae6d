// Copyright 2025 Tom Barlow
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

package errors

import (
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted context.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New.
func New(message string) error {
	return errors.New(message)
}

// Describe returns the user-facing message and suggestion for err. The first
// UserVisibleError in the chain wins; otherwise the raw error text is used
// with no suggestion.
func Describe(err error) (message, suggestion string) {
	if err == nil {
		return "", ""
	}
	var visible UserVisibleError
	if errors.As(err, &visible) && visible.IsUserVisible() {
		return visible.UserMessage(), visible.Suggestion()
	}
	return err.Error(), ""
}

// Classify returns the error type of the first ErrorClassifier in the chain,
// or "internal" when there is none.
func Classify(err error) string {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorType()
	}
	return "internal"
}

// IsRetryable reports whether err is classified as retryable.
func IsRetryable(err error) bool {
	var classifier ErrorClassifier
	return errors.As(err, &classifier) && classifier.IsRetryable()
}
