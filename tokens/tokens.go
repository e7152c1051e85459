// Package tokens estimates prompt sizes using the cl100k_base encoding.
package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

var (
	once    sync.Once
	encoder *tiktoken.Tiktoken
	loadErr error
)

// Count returns the number of cl100k_base tokens in text. The encoder is
// loaded once and reused; loading failures are returned on every call.
func Count(text string) (int, error) {
	once.Do(func() {
		encoder, loadErr = tiktoken.GetEncoding(encodingName)
	})
	if loadErr != nil {
		return 0, fmt.Errorf("loading %s encoding: %w", encodingName, loadErr)
	}
	return len(encoder.Encode(text, nil, nil)), nil
}
