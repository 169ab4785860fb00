package extract

import (
	"context"
	"strconv"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/document"
)

// socialWideRatio is the width/height above which a social image is treated
// as a promotional banner rather than a mark.
const socialWideRatio = 1.5

var (
	openGraphKeys = []string{"og:image", "og:image:url", "og:image:secure_url"}
	twitterKeys   = []string{"twitter:image", "twitter:image:src"}
)

// SocialMeta reads Open Graph and Twitter card images.
type SocialMeta struct{}

// Name implements Extractor.
func (SocialMeta) Name() string { return "social_meta" }

// Extract implements Extractor. og:image:width and og:image:height apply to
// Open Graph images only.
func (SocialMeta) Extract(_ context.Context, doc *document.Document) ([]candidate.Candidate, error) {
	ogSize := openGraphSize(doc)

	var out []candidate.Candidate
	emit := func(content string, declared candidate.Size) {
		src, ok := doc.Resolve(content)
		if !ok {
			return
		}
		c := candidate.New(src, candidate.InferFormat(src, ""), candidate.TagSocial)
		c.Declared = sizeOrFilename(declared, src)
		c.SocialWide = c.Declared.Wide(socialWideRatio)
		out = append(out, c)
	}
	for _, content := range doc.Meta(openGraphKeys...) {
		emit(content, ogSize)
	}
	for _, content := range doc.Meta(twitterKeys...) {
		emit(content, candidate.Size{})
	}
	return out, nil
}

func openGraphSize(doc *document.Document) candidate.Size {
	w, okW := doc.FirstMeta("og:image:width")
	h, okH := doc.FirstMeta("og:image:height")
	if !okW || !okH {
		return candidate.Size{}
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return candidate.Size{}
	}
	return candidate.Size{W: width, H: height}
}
