package service

import (
	"context"
)

// recentSessionCount is the number of sessions listed on the dashboard.
const recentSessionCount = 5

// GetDashboardStats returns counters aggregated over every session.
func (s *Service) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	sessions, err := s.pipeline.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		TotalSessions: len(sessions),
		Threshold:     s.pipeline.Threshold(),
	}

	for i, sess := range sessions {
		ss, err := s.pipeline.SessionStats(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		stats.TotalMessages += ss.MessageCount
		stats.ArchivedMessages += ss.ArchivedCount
		stats.TotalSummaries += ss.SummaryCount
		stats.TotalTokens += ss.TotalTokens
		stats.LiveTokens += ss.LiveTokens
		if ss.LiveTokens > stats.Threshold {
			stats.SessionsOverThreshold++
		}

		if i < recentSessionCount {
			stats.RecentSessions = append(stats.RecentSessions, sess)
		}
	}

	return stats, nil
}
