// Package rediskey centralises redis key construction so key shapes stay
// greppable in one place.
package rediskey

import "fmt"

// HandleVerification is the pending one-time code for a KOL proving
// ownership of their social handle.
func HandleVerification(chatID int64) string {
	return fmt.Sprintf("kolmarket:verify:handle:%d", chatID)
}

// CampaignSequence is the daily counter behind campaign codes.
func CampaignSequence(date string) string {
	return fmt.Sprintf("seq:campaign:%s", date)
}
