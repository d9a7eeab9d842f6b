package common

// UnboundedChannelSize is the buffer size used for channels that must never
// block their producer under normal operation.
const UnboundedChannelSize = 128
