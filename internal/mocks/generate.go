// Package mocks は go.uber.org/mock (gomock) で生成したテスト用モックです。
//
// インターフェースを変更したら再生成してください:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=user_store_mock.go github.com/josehenriquerds/celebra-mvp-sub003/internal/auth UserStore
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=session_provider_mock.go github.com/josehenriquerds/celebra-mvp-sub003/internal/auth SessionProvider
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=recorder_mock.go github.com/josehenriquerds/celebra-mvp-sub003/internal/audit Recorder
