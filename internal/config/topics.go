package config

const (
	// TopicIndexEntity carries single-entity upsert/delete tasks.
	TopicIndexEntity = "index.entity"

	// ChannelIndexer is the consumer channel for TopicIndexEntity.
	ChannelIndexer = "indexer"
)
