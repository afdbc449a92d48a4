package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/store"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Get(ctx context.Context, collection, id string) (store.Document, error) {
	args := m.Called(ctx, collection, id)
	var doc store.Document
	if val := args.Get(0); val != nil {
		doc = val.(store.Document)
	}
	return doc, args.Error(1)
}

func (m *StoreMock) Set(ctx context.Context, collection, id string, value any) error {
	args := m.Called(ctx, collection, id, value)
	return args.Error(0)
}

func (m *StoreMock) Update(ctx context.Context, collection, id string, merges store.Merges) error {
	args := m.Called(ctx, collection, id, merges)
	return args.Error(0)
}

func (m *StoreMock) Query(ctx context.Context, collection, field, value string) ([]store.Document, error) {
	args := m.Called(ctx, collection, field, value)
	var docs []store.Document
	if val := args.Get(0); val != nil {
		docs = val.([]store.Document)
	}
	return docs, args.Error(1)
}

func (m *StoreMock) Subscribe(collection, id string, onChange func(store.Snapshot), onError func(error)) func() {
	args := m.Called(collection, id, onChange, onError)
	if val := args.Get(0); val != nil {
		return val.(func())
	}
	return func() {}
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	args := m.Called(ctx, filename, data)
	return args.String(0), args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, message any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, message, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
