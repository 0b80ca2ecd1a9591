package protocol

// AckHandler receives decoded acknowledgements for one connection.
type AckHandler interface {
	SayOK()
	GripeRegex()
	Unknown(Ack)
}

// Dispatch routes every byte of chunk to h in order. Unrecognized bytes go
// to Unknown and never stop the remainder of the chunk from being routed.
func Dispatch(chunk []byte, h AckHandler) {
	for _, ack := range Decode(chunk) {
		switch ack {
		case AckSayOK:
			h.SayOK()
		case AckGripeRegex:
			h.GripeRegex()
		default:
			h.Unknown(ack)
		}
	}
}
