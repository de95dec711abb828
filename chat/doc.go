// Package chat polices Twitch chat with the same moderation pipeline used for Discord.
//
// StartTwitchModeration connects to Twitch IRC for TWITCH_CHANNEL and feeds every chat message
// through moderation.Pipeline. Sanctions are applied through Helix (message deletion and bans,
// which need a moderator user token) and announced in chat with the IRC client.
//
// Credentials: the IRC client requires a bot username and an OAuth token with chat:read/chat:edit
// scopes. The same token is used for the Helix moderation endpoints, so it also needs
// moderator:manage:banned_users and moderator:manage:chat_messages.
package chat
