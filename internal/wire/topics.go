package wire

import "strings"

const (
	channelPrefix = "channel:"
	userPrefix    = "user:"

	// StatusTopic carries global presence.
	StatusTopic = "status:lobby"
)

// ChannelTopic returns the topic name for a channel slug.
func ChannelTopic(slug string) string { return channelPrefix + slug }

// UserTopic returns the DM/user topic for a user id.
func UserTopic(userID string) string { return userPrefix + userID }

// SlugFromTopic returns the channel slug of a channel topic.
func SlugFromTopic(topic string) (string, bool) {
	slug, ok := strings.CutPrefix(topic, channelPrefix)
	if !ok || slug == "" {
		return "", false
	}
	return slug, true
}

// IsUserTopic reports whether topic is a DM/user topic.
func IsUserTopic(topic string) bool { return strings.HasPrefix(topic, userPrefix) }
