// 文件: pkg/nats/reply.go
// 请求-应答的信封格式
//
//	成功: {"data": {...}}
//	失败: {"error": {"code": "invalid_argument", "message": "..."}}

package nats

import (
	"encoding/json"
	"fmt"
)

// 错误码
const (
	CodeInvalidArgument = "invalid_argument"
	CodeInternal        = "internal"
)

type replyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *replyError     `json:"error,omitempty"`
}

// RemoteError 对端返回的处理错误
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Code, e.Message)
}

func encodeReply(out any, err error, classify ErrorClassifier) ([]byte, error) {
	if err != nil {
		return json.Marshal(envelope{Error: &replyError{Code: classify(err), Message: err.Error()}})
	}
	data, merr := json.Marshal(out)
	if merr != nil {
		return nil, merr
	}
	return json.Marshal(envelope{Data: data})
}

func decodeReply(body []byte, resp any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if env.Error != nil {
		return &RemoteError{Code: env.Error.Code, Message: env.Error.Message}
	}
	if resp == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, resp)
}
