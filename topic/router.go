package topic

import "sync"

// Router is the minimal broker's subscription table: it tracks which
// client asked for which filter at what QoS, and matches a Publish's
// topic name against every live filter via the underlying Trie.
type Router struct {
	trie          *Trie
	subscriptions map[string]map[string]*Subscription // clientID -> filter -> Subscription
	mu            sync.RWMutex
}

// NewRouter creates an empty subscription router.
func NewRouter() *Router {
	return &Router{
		trie:          NewTrie(),
		subscriptions: make(map[string]map[string]*Subscription),
	}
}

// Subscribe records sub, returning a validation error if its filter is
// malformed.
func (r *Router) Subscribe(sub *Subscription) error {
	if err := ValidateTopicFilter(sub.Filter); err != nil {
		return err
	}

	subInfo := SubscriberInfo{ClientID: sub.ClientID, QoS: sub.QoS}
	if err := r.trie.Subscribe(sub.Filter, subInfo); err != nil {
		return err
	}

	r.mu.Lock()
	if r.subscriptions[sub.ClientID] == nil {
		r.subscriptions[sub.ClientID] = make(map[string]*Subscription)
	}
	r.subscriptions[sub.ClientID][sub.Filter] = sub
	r.mu.Unlock()

	return nil
}

// Unsubscribe removes clientID's subscription to filter, reporting
// whether one existed.
func (r *Router) Unsubscribe(clientID, filter string) bool {
	found := r.trie.Unsubscribe(filter, clientID)

	r.mu.Lock()
	if clientSubs, ok := r.subscriptions[clientID]; ok {
		delete(clientSubs, filter)
		if len(clientSubs) == 0 {
			delete(r.subscriptions, clientID)
		}
	}
	r.mu.Unlock()

	return found
}

// UnsubscribeAll removes every subscription belonging to clientID,
// returning how many were removed. Called on disconnect.
func (r *Router) UnsubscribeAll(clientID string) int {
	r.mu.Lock()
	clientSubs, ok := r.subscriptions[clientID]
	if !ok {
		r.mu.Unlock()
		return 0
	}

	filters := make([]string, 0, len(clientSubs))
	for filter := range clientSubs {
		filters = append(filters, filter)
	}
	delete(r.subscriptions, clientID)
	r.mu.Unlock()

	count := 0
	for _, filter := range filters {
		if r.Unsubscribe(clientID, filter) {
			count++
		}
	}

	return count
}

// Match returns every subscriber whose filter matches topic.
func (r *Router) Match(topic string) []SubscriberInfo {
	return r.trie.Match(topic)
}

// GetSubscription retrieves a specific subscription.
func (r *Router) GetSubscription(clientID, filter string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if clientSubs, ok := r.subscriptions[clientID]; ok {
		sub, ok := clientSubs[filter]
		return sub, ok
	}
	return nil, false
}

// GetClientSubscriptions returns every subscription belonging to
// clientID.
func (r *Router) GetClientSubscriptions(clientID string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clientSubs, ok := r.subscriptions[clientID]
	if !ok {
		return nil
	}

	result := make([]*Subscription, 0, len(clientSubs))
	for _, sub := range clientSubs {
		result = append(result, sub)
	}
	return result
}

// Count returns the total number of subscriptions.
func (r *Router) Count() int {
	return r.trie.Count()
}

// CountClients returns the number of distinct clients with at least one
// subscription.
func (r *Router) CountClients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions)
}

// Clear removes every subscription.
func (r *Router) Clear() {
	r.mu.Lock()
	r.subscriptions = make(map[string]map[string]*Subscription)
	r.mu.Unlock()
	r.trie.Clear()
}
