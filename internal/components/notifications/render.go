package notifications

import "fmt"

// Meta keys read by Render. Producers may set more.
const (
	MetaRequestID     = "requestId"
	MetaKind          = "kind"
	MetaStatus        = "status"
	MetaRequesterID   = "requesterId"
	MetaRequesterName = "requesterName"
	MetaOwnerID       = "ownerId"
	MetaOwnerName     = "ownerName"
	MetaProjectName   = "projectName"
	MetaFollowerID    = "followerId"
	MetaFollowerName  = "followerName"
	MetaAuthorName    = "authorName"
)

// Render returns the default title and message for a notice.
func Render(t Type, meta map[string]string) (title, message string) {
	get := func(key, fallback string) string {
		if v := meta[key]; v != "" {
			return v
		}
		return fallback
	}
	project := get(MetaProjectName, "your project")
	requester := get(MetaRequesterName, get(MetaRequesterID, "Someone"))
	owner := get(MetaOwnerName, get(MetaOwnerID, "The owner"))

	switch t {
	case TypeCollaborationRequest:
		return "New collaboration request",
			fmt.Sprintf("%s wants to collaborate on %s", requester, project)
	case TypeCollaborationApproved:
		return "Collaboration request approved",
			fmt.Sprintf("%s approved your request to collaborate on %s", owner, project)
	case TypeCollaborationDenied:
		return "Collaboration request declined",
			fmt.Sprintf("%s declined your request to collaborate on %s", owner, project)
	case TypeReviewRequest:
		return "New review request",
			fmt.Sprintf("%s asked to review %s", requester, project)
	case TypeReviewApproved:
		return "Review request approved",
			fmt.Sprintf("%s approved your review request for %s", owner, project)
	case TypeReviewDenied:
		return "Review request declined",
			fmt.Sprintf("%s declined your review request for %s", owner, project)
	case TypeNewFollower:
		return "New follower",
			fmt.Sprintf("%s started following you", get(MetaFollowerName, get(MetaFollowerID, "Someone")))
	case TypeNewComment:
		return "New comment",
			fmt.Sprintf("%s commented on %s", get(MetaAuthorName, "Someone"), project)
	default:
		return "Notification", ""
	}
}
