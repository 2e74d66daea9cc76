package auth

import (
	"strings"

	"github.com/grendelpress/manuscript-vault/internal/db/models"
)

// channels maps the referral labels shown to readers onto stored distribution types.
var channels = map[string]string{
	"arc":      models.ChannelARC,
	"hwa":      models.ChannelHWA,
	"giveaway": models.ChannelGiveaway,
	"other":    models.ChannelOther,
}

// ResolveChannel maps a reader-supplied referral hint ("HWA", "ARC", "Giveaway",
// "Other") to a distribution channel. Matching ignores case and surrounding
// whitespace; unknown or empty hints resolve to the "other" channel.
func ResolveChannel(hint string) string {
	if ch, ok := channels[strings.ToLower(strings.TrimSpace(hint))]; ok {
		return ch
	}
	return models.ChannelOther
}

// ValidChannel reports whether channel is one of the stored distribution types.
func ValidChannel(channel string) bool {
	_, ok := channels[channel]
	return ok
}
