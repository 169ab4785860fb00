package scoring

import (
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/JakeFAU/logohunter/internal/candidate"
)

const (
	nonSquareAspect     = 1.25
	extremelyWideAspect = 5.0
	verySmallSide       = 16
	smallSide           = 32
	deepNesting         = 12
	maxRasterArea       = 2048 * 2048
	trackingPixelSide   = 2
	standardIconSlack   = 2
)

var (
	brandKeywords   = []string{"brand", "header-logo", "site-logo", "company-logo"}
	socialKeywords  = []string{"social", "share", "preview", "facebook", "twitter", "instagram", "linkedin"}
	adKeywords      = []string{"advert", "sponsor", "promo", "affiliate", "banner"}
	adTokens        = []string{"ad", "ads"}
	contentKeywords = []string{"article", "post", "content", "blog"}

	genericStem = regexp.MustCompile(`^(?:icon\d+|image|img|pic|photo|picture)[-_]?\d*$`)

	standardIconSides = []int{128, 152, 167, 180, 192, 256, 512}
)

type dims struct{ w, h int }

var (
	socialSizes = []dims{
		{1200, 630}, {1200, 628}, {1024, 512}, {1200, 675},
		{1080, 1080}, {1080, 1920}, {1200, 1200},
	}
	bannerSizes = []dims{
		{728, 90}, {300, 250}, {336, 280}, {320, 50}, {468, 60},
		{234, 60}, {120, 600}, {160, 600}, {300, 600},
	}
)

// Builtin returns the predicate implementations for the default weight table.
// The map is fresh on every call so callers may add their own predicates.
func Builtin() Predicates {
	p := Predicates{
		"context/manifest":         hasTag(candidate.TagManifestIcon),
		"context/manifest_purpose": hasTag(candidate.TagManifestAny),
		"context/apple_touch":      hasTag(candidate.TagAppleTouch),
		"context/logo_keyword":     hasTag(candidate.TagLogoKeyword),
		"context/logo_class_id":    hasTag(candidate.TagLogoClassID),
		"context/standard_favicon": hasTag(candidate.TagFavicon, candidate.TagFaviconSVG),
		"context/social":           hasTag(candidate.TagSocial),
		"context/fallback":         hasTag(candidate.TagFallback),

		"html/brand_keyword":         brandKeyword,
		"html/generic_filename":      genericFilename,
		"html/social_media_context":  socialMediaContext,
		"html/advertisement_context": advertisementContext,
		"html/content_area_context":  contentAreaContext,
		"html/deep_dom_nesting":      func(f Facts) bool { return f.Candidate.Evidence.Depth > deepNesting },

		"dimensions/non_square":           sized(func(s candidate.Size) bool { return s.Aspect() > nonSquareAspect }),
		"dimensions/extremely_wide":       sized(func(s candidate.Size) bool { return s.Aspect() > extremelyWideAspect }),
		"dimensions/very_small":           sized(func(s candidate.Size) bool { return s.MaxSide() < verySmallSide }),
		"dimensions/small":                sized(func(s candidate.Size) bool { return s.MaxSide() >= verySmallSide && s.MaxSide() < smallSide }),
		"dimensions/social_declared_wide": func(f Facts) bool { return f.Candidate.SocialWide },
		"dimensions/social_dimensions":    sized(func(s candidate.Size) bool { return matchesAny(s, socialSizes, 0.05, 0) }),
		"dimensions/banner_dimensions":    sized(func(s candidate.Size) bool { return matchesAny(s, bannerSizes, 0.10, 5) }),

		"fetched/standard_icon_size": standardIconSize,
		"fetched/tracking_pixel":     trackingPixel,
		"fetched/oversized_raster":   oversizedRaster,
		"fetched/single_color_svg":   singleColorSVG,
		"fetched/white_only_svg":     whiteOnlySVG,
	}
	for _, f := range []candidate.Format{
		candidate.FormatSVG, candidate.FormatPNG, candidate.FormatWEBP,
		candidate.FormatICO, candidate.FormatJPEG, candidate.FormatGIF,
	} {
		p["format/"+strings.ToLower(string(f))] = isFormat(f)
	}
	return p
}

// EffectiveFormat is the inspected format when known, else the hint.
func EffectiveFormat(f Facts) candidate.Format {
	if f.Meta != nil && f.Meta.Format.Known() {
		return f.Meta.Format
	}
	return f.Candidate.Format
}

// EffectiveSize is the fetched size when known, else the declared size.
func EffectiveSize(f Facts) candidate.Size {
	if f.Meta != nil && f.Meta.HasDimensions() {
		return f.Meta.Size()
	}
	return f.Candidate.Declared
}

func isFormat(want candidate.Format) Predicate {
	return func(f Facts) bool { return EffectiveFormat(f) == want }
}

func hasTag(tags ...candidate.Tag) Predicate {
	return func(f Facts) bool { return f.Candidate.HasAnyTag(tags...) }
}

// sized runs check on the effective size; unknown sizes never fire.
func sized(check func(candidate.Size) bool) Predicate {
	return func(f Facts) bool {
		s := EffectiveSize(f)
		if s.IsZero() {
			return false
		}
		return check(s)
	}
}

func matchesAny(s candidate.Size, table []dims, ratio float64, floor int) bool {
	for _, d := range table {
		wTol := max(float64(d.w)*ratio, float64(floor))
		hTol := max(float64(d.h)*ratio, float64(floor))
		if absDiff(s.W, d.w) <= wTol && absDiff(s.H, d.h) <= hTol {
			return true
		}
	}
	return false
}

func absDiff(a, b int) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}

func filename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(path.Base(rawURL))
	}
	return strings.ToLower(path.Base(u.Path))
}

func containsAny(value string, keywords []string) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// markup returns the attributes of an <img> candidate that rules may read.
func markup(c candidate.Candidate) []string {
	return []string{filename(c.URL), c.Evidence.Alt, c.Evidence.Class, c.Evidence.ID}
}

func brandKeyword(f Facts) bool {
	e := f.Candidate.Evidence
	return containsAny(e.Alt, brandKeywords) || containsAny(e.Class, brandKeywords) || containsAny(e.ID, brandKeywords)
}

func genericFilename(f Facts) bool {
	name := filename(f.Candidate.URL)
	if containsAny(name, []string{"placeholder", "default"}) {
		return true
	}
	stem := strings.TrimSuffix(name, path.Ext(name))
	return genericStem.MatchString(stem)
}

func socialMediaContext(f Facts) bool {
	return slices.ContainsFunc(markup(f.Candidate), func(v string) bool { return containsAny(v, socialKeywords) })
}

func advertisementContext(f Facts) bool {
	c := f.Candidate
	if slices.ContainsFunc(markup(c), func(v string) bool { return containsAny(v, adKeywords) }) {
		return true
	}
	for _, token := range c.Evidence.Ancestors {
		if slices.Contains(adTokens, token) || containsAny(token, adKeywords) {
			return true
		}
	}
	for _, token := range strings.Fields(strings.ToLower(c.Evidence.Class)) {
		if slices.Contains(adTokens, token) {
			return true
		}
	}
	return false
}

func contentAreaContext(f Facts) bool {
	return slices.ContainsFunc(f.Candidate.Evidence.Ancestors, func(token string) bool {
		return containsAny(token, contentKeywords)
	})
}

func standardIconSize(f Facts) bool {
	if f.Meta == nil || !f.Meta.HasDimensions() {
		return false
	}
	s := f.Meta.Size()
	for _, side := range standardIconSides {
		if absDiff(s.W, side) <= standardIconSlack && absDiff(s.H, side) <= standardIconSlack {
			return true
		}
	}
	return false
}

func trackingPixel(f Facts) bool {
	if f.Meta == nil || !f.Meta.HasDimensions() {
		return false
	}
	return f.Meta.Width <= trackingPixelSide && f.Meta.Height <= trackingPixelSide
}

func oversizedRaster(f Facts) bool {
	if f.Meta == nil || f.Meta.Vector {
		return false
	}
	return f.Meta.Size().Area() > maxRasterArea
}

func singleColorSVG(f Facts) bool {
	if f.Meta == nil || !f.Meta.Vector {
		return false
	}
	return len(f.Meta.Colors) == 1 && f.Meta.Colors[0] != "white"
}

func whiteOnlySVG(f Facts) bool {
	if f.Meta == nil || !f.Meta.Vector {
		return false
	}
	return len(f.Meta.Colors) == 1 && f.Meta.Colors[0] == "white"
}
