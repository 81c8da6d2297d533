// Package mocks holds gomock doubles for the crawler's collaborator interfaces.
package mocks

//go:generate mockgen -destination=post_sink.go -package=mocks forum/crawler/internal/repository PostSink
//go:generate mockgen -destination=client.go -package=mocks forum/crawler/internal/client Client
