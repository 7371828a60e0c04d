package remoting

// Well-known attachment keys consulted by the exchange and protocol layers.
const (
	AttachmentPath             = "path"
	AttachmentGroup            = "group"
	AttachmentVersion          = "version"
	AttachmentTimeout          = "timeout"
	AttachmentIsCallbackInvoke = "is-callback-invoke"
	AttachmentNeedMock         = "need-mock"
	AttachmentStubEvent        = "stub-event"
)

// Invocation is the payload of a Request that carries an RPC call: method
// name, parameter type descriptors, arguments, and side-channel attachments.
type Invocation struct {
	Method         string
	ParameterTypes []string
	Arguments      []any
	Attachments    map[string]string
}

// NewInvocation builds an Invocation with an initialized attachment map.
func NewInvocation(method string, paramTypes []string, args []any) *Invocation {
	return &Invocation{
		Method:         method,
		ParameterTypes: paramTypes,
		Arguments:      args,
		Attachments:    make(map[string]string),
	}
}

// Attachment returns the named attachment, or "" if absent.
func (inv *Invocation) Attachment(key string) string {
	if inv.Attachments == nil {
		return ""
	}
	return inv.Attachments[key]
}

func (inv *Invocation) SetAttachment(key, value string) {
	if inv.Attachments == nil {
		inv.Attachments = make(map[string]string)
	}
	inv.Attachments[key] = value
}
