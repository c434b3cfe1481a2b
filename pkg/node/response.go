package node

type Status string

const (
	StatusSuccess Status = "Success"
	StatusError   Status = "Error"
)

// Response is what every command returns and what the facade writes back
// verbatim: a status, an operation-specific payload and a readable message.
type Response struct {
	Status  Status `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func Success(data any, msg string) Response {
	return Response{Status: StatusSuccess, Data: data, Message: msg}
}

func Failure(data any, msg string) Response {
	return Response{Status: StatusError, Data: data, Message: msg}
}

func (r Response) OK() bool { return r.Status == StatusSuccess }
