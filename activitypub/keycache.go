package activitypub

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
	"github.com/fedipress/fedipress/util"
)

// KeyCache caches remote actor public keys by keyId, with the configured
// TTL. Entries live in memory and are mirrored to the store so they survive
// restarts. Expired entries are refetched on demand.
type KeyCache struct {
	rt      *Runtime
	mu      sync.RWMutex
	entries map[string]*domain.CachedKey
}

func NewKeyCache(rt *Runtime) *KeyCache {
	return &KeyCache{rt: rt, entries: make(map[string]*domain.CachedKey)}
}

func (c *KeyCache) get(keyId string, now time.Time) *domain.CachedKey {
	c.mu.RLock()
	entry := c.entries[keyId]
	c.mu.RUnlock()

	if entry != nil && !entry.Expired(now) {
		return entry
	}

	// Fall back to the persisted copy.
	var stored domain.CachedKey
	if err := c.rt.Store.Get(store.NsRemoteKeys, keyId, &stored); err == nil && !stored.Expired(now) {
		c.mu.Lock()
		c.entries[keyId] = &stored
		c.mu.Unlock()
		return &stored
	}

	return nil
}

func (c *KeyCache) put(entry *domain.CachedKey) {
	c.mu.Lock()
	c.entries[entry.Id] = entry
	c.mu.Unlock()

	if err := c.rt.Store.Put(store.NsRemoteKeys, entry.Id, entry); err != nil {
		c.rt.Log.Warnf("KeyCache: Failed to persist key %s: %v", entry.Id, err)
	}
}

// FetchPublicKey returns the PEM public key for a keyId, from cache or by
// dereferencing the actor document at the keyId URL (fragment stripped).
func (c *KeyCache) FetchPublicKey(keyId string) (string, error) {
	now := c.rt.Now()

	if entry := c.get(keyId, now); entry != nil {
		return entry.PublicKeyPem, nil
	}

	fetchUrl := strings.Split(keyId, "#")[0]

	req, err := http.NewRequest(http.MethodGet, fetchUrl, nil)
	if err != nil {
		return "", domain.SignatureError("invalid keyId %q: %v", keyId, err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := c.rt.Client.Do(req)
	if err != nil {
		return "", domain.SignatureError("failed to fetch key %s: %v", keyId, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", domain.SignatureError("key fetch for %s returned status %d", keyId, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", domain.SignatureError("failed to read key document: %v", err)
	}

	owner, pem, err := extractPublicKey(body, keyId)
	if err != nil {
		return "", err
	}

	c.put(&domain.CachedKey{
		Id:           keyId,
		Owner:        owner,
		PublicKeyPem: pem,
		CachedAt:     now,
		TtlSeconds:   c.rt.Conf.Conf.ActorKeyCacheTtl,
	})

	return pem, nil
}

// extractPublicKey pulls publicKeyPem out of an actor document. In the list
// form the key whose id equals keyId is used; a single publicKey object is
// used whatever its id.
func extractPublicKey(body []byte, keyId string) (owner, pem string, err error) {
	var doc struct {
		Id        string          `json:"id"`
		PublicKey json.RawMessage `json:"publicKey"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", "", domain.SignatureError("key document is not valid JSON: %v", err)
	}
	if len(doc.PublicKey) == 0 {
		return "", "", domain.SignatureError("key document for %s has no publicKey", keyId)
	}

	var single domain.PublicKey
	if err := json.Unmarshal(doc.PublicKey, &single); err == nil && single.PublicKeyPem != "" {
		if single.Id == "" || single.Id == keyId {
			return single.Owner, single.PublicKeyPem, nil
		}
		// fall through: a single key with a different id is still usable
		// when it is the only one published
		return single.Owner, single.PublicKeyPem, nil
	}

	var many []domain.PublicKey
	if err := json.Unmarshal(doc.PublicKey, &many); err == nil {
		for _, key := range many {
			if key.Id == keyId && key.PublicKeyPem != "" {
				return key.Owner, key.PublicKeyPem, nil
			}
		}
	}

	return "", "", domain.SignatureError("no usable public key with id %s", keyId)
}

// Sweep drops expired entries; called periodically from the runtime worker.
func (c *KeyCache) Sweep() int {
	now := c.rt.Now()

	c.mu.Lock()
	removed := 0
	for id, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, id)
			removed++
		}
	}
	c.mu.Unlock()

	keys, err := c.rt.Store.List(store.NsRemoteKeys)
	if err != nil {
		return removed
	}
	for _, id := range keys {
		var stored domain.CachedKey
		if err := c.rt.Store.Get(store.NsRemoteKeys, id, &stored); err != nil {
			continue
		}
		if stored.Expired(now) {
			c.rt.Store.Delete(store.NsRemoteKeys, id)
		}
	}

	return removed
}

// Size reports the number of in-memory entries.
func (c *KeyCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
