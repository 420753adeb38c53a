// Package sessions — session key builder and parser.
//
// Session keys identify one agent conversation:
//
//	Chat:      {channel}:{chatID}     e.g. discord:123456
//	Cron:      cron:{jobID}
//	Heartbeat: heartbeat
package sessions

import "strings"

// HeartbeatKey is the shared session for heartbeat turns.
const HeartbeatKey = "heartbeat"

// BuildKey builds the session key for a channel conversation.
func BuildKey(channel, chatID string) string {
	return channel + ":" + chatID
}

// BuildCronKey builds the session key for a cron job run.
// Guards against double-prefixing when the job id is already a cron key.
func BuildCronKey(jobID string) string {
	if strings.HasPrefix(jobID, "cron:") {
		return jobID
	}
	return "cron:" + jobID
}

// Parse splits a chat session key into channel and chat id.
// Returns ("", "") for keys not in the channel:chatID form.
func Parse(key string) (channel, chatID string) {
	idx := strings.Index(key, ":")
	if idx <= 0 {
		return "", ""
	}
	return key[:idx], key[idx+1:]
}

// IsCronKey checks if a session key belongs to a cron run.
func IsCronKey(key string) bool {
	return strings.HasPrefix(key, "cron:")
}
