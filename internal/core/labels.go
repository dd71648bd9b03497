package core

import "fmt"

// Labels holds the status texts the CRM renders for a business record.
type Labels struct {
	Approved string
	Denied   string
	Revoked  string
	// Awaiting is a format string taking the pending step number.
	Awaiting string

	// Notification formats, used by UserStep.Notifications.
	// Reviewed takes step number, actor name and result.
	Reviewed string
	// Rejected takes the actor name.
	Rejected string
}

// EnglishLabels are the default status texts.
var EnglishLabels = Labels{
	Approved: "Approved",
	Denied:   "Denied",
	Revoked:  "Revoked",
	Awaiting: "Awaiting level-%d approval",
	Reviewed: "level-%d approver %s reviewed your request: %s",
	Rejected: "%s rejected your request",
}

// ChineseLabels match the CRM's zh-CN rendering.
var ChineseLabels = Labels{
	Approved: "已通过",
	Denied:   "已否决",
	Revoked:  "已撤销",
	Awaiting: "待%d级审批",
	Reviewed: "%d级审批人 %s 审批%s了你的",
	Rejected: "%s审批驳回了你的",
}

// LabelsFor returns the label set for a locale ("en" or "zh").
func LabelsFor(locale string) (Labels, error) {
	switch locale {
	case "", "en":
		return EnglishLabels, nil
	case "zh", "zh-CN":
		return ChineseLabels, nil
	default:
		return Labels{}, fmt.Errorf("unknown label locale %q", locale)
	}
}

// AwaitingLevel renders the awaiting label for step n.
func (l Labels) AwaitingLevel(n int) string {
	return fmt.Sprintf(l.Awaiting, n)
}
