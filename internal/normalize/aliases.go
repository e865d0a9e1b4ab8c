package normalize

// Aliases maps canonicalized input header names to canonical fields.
// It is consulted before any similarity scoring, so every spelling seen in
// the wild belongs here rather than relying on fuzzy matching.
// Keys must already be in CanonicalKey form.
var Aliases = map[string]string{
	// title
	"name":           FieldTitle,
	"listing_title":  FieldTitle,
	"property_name":  FieldTitle,
	"heading":        FieldTitle,
	"headline":       FieldTitle,
	"property_title": FieldTitle,
	"ad_title":       FieldTitle,

	// url
	"link":         FieldURL,
	"href":         FieldURL,
	"listing_url":  FieldURL,
	"property_url": FieldURL,
	"page_url":     FieldURL,
	"source_url":   FieldURL,

	// property_type
	"type":          FieldPropertyType,
	"category":      FieldPropertyType,
	"property_kind": FieldPropertyType,
	"building_type": FieldPropertyType,
	"house_type":    FieldPropertyType,

	// listing_type
	"purpose":      FieldListingType,
	"offer_type":   FieldListingType,
	"listing_kind": FieldListingType,
	"for":          FieldListingType,
	"status":       FieldListingType,

	// price
	"cost":          FieldPrice,
	"amount":        FieldPrice,
	"price_naira":   FieldPrice,
	"price_ngn":     FieldPrice,
	"asking_price":  FieldPrice,
	"rent":          FieldPrice,
	"annual_rent":   FieldPrice,
	"selling_price": FieldPrice,
	"value":         FieldPrice,

	// currency
	"ccy":           FieldCurrency,
	"currency_code": FieldCurrency,

	// location
	"addr":              FieldLocation,
	"address":           FieldLocation,
	"full_address":      FieldLocation,
	"property_address":  FieldLocation,
	"place":             FieldLocation,
	"neighbourhood":     FieldLocation,
	"neighborhood":      FieldLocation,
	"locality":          FieldLocation,
	"location_area":     FieldLocation,
	"area_location":     FieldLocation,
	"property_location": FieldLocation,

	// structured location
	"district": FieldArea,
	"estate":   FieldArea,
	"lga":      FieldCity,
	"town":     FieldCity,
	"region":   FieldState,

	// bedrooms
	"beds":               FieldBedrooms,
	"bed":                FieldBedrooms,
	"bedroom":            FieldBedrooms,
	"br":                 FieldBedrooms,
	"no_of_bedrooms":     FieldBedrooms,
	"num_beds":           FieldBedrooms,
	"no_of_beds":         FieldBedrooms,
	"number_of_bedrooms": FieldBedrooms,
	"bedroom_count":      FieldBedrooms,
	"bedrooms_count":     FieldBedrooms,

	// bathrooms
	"baths":               FieldBathrooms,
	"bath":                FieldBathrooms,
	"bathroom":            FieldBathrooms,
	"no_of_bathrooms":     FieldBathrooms,
	"no_of_baths":         FieldBathrooms,
	"number_of_bathrooms": FieldBathrooms,
	"bathroom_count":      FieldBathrooms,

	// toilets
	"toilet":        FieldToilets,
	"wc":            FieldToilets,
	"no_of_toilets": FieldToilets,
	"toilet_count":  FieldToilets,

	// description
	"desc":    FieldDescription,
	"details": FieldDescription,
	"summary": FieldDescription,
	"body":    FieldDescription,
	"about":   FieldDescription,

	// images
	"image":        FieldImages,
	"image_url":    FieldImages,
	"image_urls":   FieldImages,
	"photos":       FieldImages,
	"pictures":     FieldImages,
	"media":        FieldImages,
	"gallery":      FieldImages,
	"image_links":  FieldImages,
	"image_link":   FieldImages,
	"images_links": FieldImages,
	"photo_urls":   FieldImages,

	// scraped_at
	"scraped":    FieldScrapedAt,
	"crawled_at": FieldScrapedAt,
	"fetched_at": FieldScrapedAt,
	"timestamp":  FieldScrapedAt,
	"date":       FieldScrapedAt,
	"date_added": FieldScrapedAt,
}
