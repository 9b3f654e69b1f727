package handler

import "github.com/studyhub/group-requests/internal/core/domain"

// toRequestResponse maps a domain request to its transport shape.
func toRequestResponse(r *domain.Request) requestResponse {
	return requestResponse{
		RequestID: r.ID,
		UserID:    r.UserID,
		GroupID:   r.GroupID,
		CourseID:  r.CourseID,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Links: requestLinks{
			Self:   "/v1/requests/" + r.ID,
			Events: "/v1/requests/" + r.ID + "/events",
		},
	}
}

func toListResponse(rs []*domain.Request) listRequestsResponse {
	out := make([]requestResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRequestResponse(r))
	}
	return listRequestsResponse{Requests: out, Count: len(out)}
}

func toHistoryResponse(requestID string, events []*domain.RequestEvent) requestHistoryResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			From:        string(e.From),
			To:          string(e.To),
			Cause:       string(e.Cause),
			TriggeredBy: e.TriggeredBy,
			Timestamp:   e.Timestamp,
		})
	}
	return requestHistoryResponse{RequestID: requestID, Events: out}
}
