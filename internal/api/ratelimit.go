// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedUsers bounds the limiter map before idle entries are pruned.
	maxTrackedUsers = 10000
	limiterIdleTTL  = 10 * time.Minute
)

type userLimit struct {
	limiter *rate.Limiter
	seen    time.Time
}

// uploadLimiter throttles uploads per user with a token bucket.
type uploadLimiter struct {
	mu    sync.Mutex
	users map[string]*userLimit
	limit rate.Limit
	burst int
	now   func() time.Time
}

// newUploadLimiter allows perMinute uploads per user. perMinute <= 0
// returns nil, which allows everything.
func newUploadLimiter(perMinute int) *uploadLimiter {
	if perMinute <= 0 {
		return nil
	}
	burst := perMinute
	if burst > 5 {
		burst = 5
	}
	return &uploadLimiter{
		users: make(map[string]*userLimit),
		limit: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: burst,
		now:   time.Now,
	}
}

func (l *uploadLimiter) allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.users) >= maxTrackedUsers {
		for id, u := range l.users {
			if now.Sub(u.seen) > limiterIdleTTL {
				delete(l.users, id)
			}
		}
	}

	u, ok := l.users[userID]
	if !ok {
		u = &userLimit{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = u
	}
	u.seen = now
	return u.limiter.AllowN(now, 1)
}

// throttle rejects uploads above the per-user rate.
func (h *Handler) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.uploads.allow(userFrom(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "upload rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
