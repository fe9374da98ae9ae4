// AngelaMos | 2026
// generate.go

// Package mocks holds gomock doubles for interfaces that cross package
// boundaries. Regenerate with:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=blob_store_mock.go github.com/ElidioPeirao/EPROJECTS-SITE/internal/blob Store
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go -mock_names=Store=MockSessionStore github.com/ElidioPeirao/EPROJECTS-SITE/internal/session Store
