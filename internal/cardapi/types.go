// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardapi

//go:generate easyjson -no_std_marshalers types.go

const (
	BatchImagesPath = "/api/cards/images"

	VariantParam = "variant"
)

//easyjson:json
type BatchImagesRequest struct {
	CardIDs []int64 `json:"card_ids"`
}

//easyjson:json
type BatchImagesResponse struct {
	Images []BatchImage `json:"images,required"`
}

// BatchImage carries base64 image, optionally as data URL
type BatchImage struct {
	CardID    int64  `json:"card_id,required"`
	ImageData string `json:"image_data,required"`
}

// CardListing is the previously fetched card list, it supplies image version of every card
//
//easyjson:json
type CardListing struct {
	Cards []ListedCard `json:"cards,required"`
}

type ListedCard struct {
	ID             int64  `json:"id,required"`
	ImageUpdatedAt string `json:"image_updated_at,omitempty"`
}
