// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	_ "golang.org/x/image/webp" // register decoder
)

var errEmptyImage = errors.New("empty image payload")

// validateImage decodes payload fully, so only renderable images are cached
func validateImage(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", errEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	if b := img.Bounds(); b.Empty() {
		return format, fmt.Errorf("%s image has empty bounds %v", format, b)
	}
	return format, nil
}
