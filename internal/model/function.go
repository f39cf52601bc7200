package model

import "time"

// Function is a user-defined expression function, e.g. func ratio(x, y) = x / y.
// The body is stored verbatim; evaluation happens elsewhere.
type Function struct {
	Name       string    `json:"name"`
	Parameters []string  `json:"parameters"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewFunction(name string, parameters []string, body string) Function {
	if parameters == nil {
		parameters = []string{}
	}
	return Function{
		Name:       name,
		Parameters: append([]string{}, parameters...),
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
}

func (f Function) Clone() Function {
	out := f
	out.Parameters = append([]string{}, f.Parameters...)
	return out
}
