// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/regbridge/pkg/bridge"
	"github.com/stacklok/regbridge/pkg/logger"
)

const (
	defaultIndexTTL    = 2 * time.Minute
	defaultListTimeout = 10 * time.Second
)

// NameIndex caches the id/name listing of collections for a short time so
// the first filter phase does not list the collection on every request.
// Listings of one collection are loaded at most once concurrently. A shared
// listing is detached from the request that started it and bounded by its own
// timeout; each caller stops waiting when its own context ends.
type NameIndex struct {
	entries     *gocache.Cache
	group       singleflight.Group
	listTimeout time.Duration
}

// NewNameIndex creates an index whose listings live for ttl and whose
// collection listings are cut off after listTimeout.
func NewNameIndex(ttl, listTimeout time.Duration) *NameIndex {
	if ttl <= 0 {
		ttl = defaultIndexTTL
	}
	if listTimeout <= 0 {
		listTimeout = defaultListTimeout
	}
	return &NameIndex{entries: gocache.New(ttl, 2*ttl), listTimeout: listTimeout}
}

func indexKey(groupType, groupID, resourceType string) string {
	return groupType + "/" + groupID + "/" + resourceType
}

// Lookup returns the listing of a collection in source order.
func (x *NameIndex) Lookup(
	ctx context.Context, adapter bridge.Adapter, groupType, groupID, resourceType string,
) ([]bridge.ResourceSummary, error) {
	key := indexKey(groupType, groupID, resourceType)
	if v, ok := x.entries.Get(key); ok {
		return v.([]bridge.ResourceSummary), nil
	}

	ch := x.group.DoChan(key, func() (any, error) {
		if v, ok := x.entries.Get(key); ok {
			return v, nil
		}
		listCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.listTimeout)
		defer cancel()
		entries, err := adapter.ListCollection(listCtx, groupID, resourceType)
		if err != nil {
			return nil, err
		}
		x.entries.SetDefault(key, entries)
		logger.Debugf("indexed %d entries of %s", len(entries), key)
		return entries, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logger.Debugw("joined in-flight listing", "collection", key)
		}
		return res.Val.([]bridge.ResourceSummary), nil
	}
}

// Invalidate drops every cached listing of a source.
func (x *NameIndex) Invalidate(groupType string) {
	prefix := groupType + "/"
	for key := range x.entries.Items() {
		if strings.HasPrefix(key, prefix) {
			x.entries.Delete(key)
		}
	}
}
