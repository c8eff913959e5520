package main

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// The export bucket speaks the plain S3 listing dialect: repeated <Contents>
// blocks plus page-level truncation and cursor tags. Responses are small and
// flat, so tag extraction works on the raw page text.
var (
	contentsPattern     = tagBlockPattern("Contents")
	keyPattern          = tagPattern("Key")
	sizePattern         = tagPattern("Size")
	lastModifiedPattern = tagPattern("LastModified")
	isTruncatedPattern  = tagPattern("IsTruncated")
	nextMarkerPattern   = tagPattern("NextMarker")
	nextTokenPattern    = tagPattern("NextContinuationToken")
)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

func tagBlockPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?s)<%s>.*?</%s>`, tag, tag))
}

func tagPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?s)<%s>(.*?)</%s>`, tag, tag))
}

func tagValue(source string, pattern *regexp.Regexp) (string, bool) {
	match := pattern.FindStringSubmatch(source)
	if match == nil {
		return "", false
	}

	return entityReplacer.Replace(strings.TrimSpace(match[1])), true
}

// ParseListingPage decodes one page of bucket-listing XML into structured
// object records plus pagination cursors. It is a pure transform: malformed
// entries are skipped, they never abort the page.
func ParseListingPage(body string) *ListingPage {
	page := &ListingPage{
		Objects: make([]ListingObject, 0),
	}

	for _, block := range contentsPattern.FindAllString(body, -1) {
		object, ok := parseListingObject(block)
		if !ok {
			continue
		}

		page.Objects = append(page.Objects, object)
	}

	if truncated, ok := tagValue(body, isTruncatedPattern); ok {
		page.IsTruncated = strings.EqualFold(truncated, "true")
	}

	page.NextMarker, _ = tagValue(body, nextMarkerPattern)
	page.NextContinuationToken, _ = tagValue(body, nextTokenPattern)

	return page
}

func parseListingObject(block string) (ListingObject, bool) {
	key, ok := tagValue(block, keyPattern)
	if !ok || key == "" {
		return ListingObject{}, false
	}

	rawSize, ok := tagValue(block, sizePattern)
	if !ok {
		return ListingObject{}, false
	}

	lastModified, ok := tagValue(block, lastModifiedPattern)
	if !ok {
		return ListingObject{}, false
	}

	size, err := strconv.ParseFloat(rawSize, 64)
	if err != nil || math.IsNaN(size) || math.IsInf(size, 0) || size < 0 {
		return ListingObject{}, false
	}

	return ListingObject{
		Key:          key,
		Size:         int64(size),
		LastModified: lastModified,
	}, true
}
