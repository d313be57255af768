package compute

// Command types
const (
	CommandGet    = "GET"
	CommandSet    = "SET"
	CommandDel    = "DEL"
	CommandExists = "EXISTS"
	CommandPing   = "PING"
	CommandTTL    = "TTL"
	CommandPTTL   = "PTTL"
)

// Response messages
const (
	ResponseOK   = "OK"
	ResponsePong = "PONG"
)

// SET options
const (
	optionNX      = "NX"
	optionXX      = "XX"
	optionGet     = "GET"
	optionEX      = "EX"
	optionPX      = "PX"
	optionEXAT    = "EXAT"
	optionPXAT    = "PXAT"
	optionKeepTTL = "KEEPTTL"
)

// TTL replies for keys without a deadline
const (
	ttlMissingKey = -2
	ttlNoExpiry   = -1
)
