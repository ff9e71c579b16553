package dto

type ChatRequest struct {
	Message  string     `json:"message" validate:"required,min=1"`
	ThreadId string     `json:"threadId" validate:"required,min=1,max=128"`
	Config   *RunConfig `json:"config,omitempty"`
}

// Configurable returns the overrides, zero when the request has no config.
func (r *ChatRequest) Configurable() Configurable {
	if r.Config == nil {
		return Configurable{}
	}
	return r.Config.Configurable
}

type CancelTurnResponse struct {
	ThreadId  string `json:"thread_id"`
	Cancelled bool   `json:"cancelled"`
}
