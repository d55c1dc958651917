package eventbus

// Topic names an event family. Payload types live with the component that
// publishes them.
type Topic string

const (
	TopicRequestCreated       Topic = "request:created"
	TopicRequestStatusChanged Topic = "request:statusChanged"
	TopicFollowChanged        Topic = "follow:changed"
	TopicFavoriteChanged      Topic = "favorite:changed"
	TopicUnreadChanged        Topic = "notification:unreadChanged"
	TopicProfileChanged       Topic = "profile:changed"
)

// Topics lists every topic the core publishes.
var Topics = []Topic{
	TopicRequestCreated,
	TopicRequestStatusChanged,
	TopicFollowChanged,
	TopicFavoriteChanged,
	TopicUnreadChanged,
	TopicProfileChanged,
}

// ParseTopic reports whether s names a known topic.
func ParseTopic(s string) (Topic, bool) {
	for _, t := range Topics {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}
