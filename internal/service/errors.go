package service

import "errors"

var ErrInvalidRequest = errors.New("chat_id and prompt are required")
