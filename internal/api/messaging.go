package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/messaging"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

// conversationPair resolves the patient and doctor of a chat request.
// Doctors and patients are pinned to their own side of the pair.
func conversationPair(who *auth.Identity, patientRaw, doctorRaw string) (uuid.UUID, uuid.UUID, error) {
	var patientID *uuid.UUID
	var err error
	if who.Role == auth.RolePatient {
		if who.PatientID == nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("%w: token carries no patient id", errForbidden)
		}
		patientID = who.PatientID
	} else if patientID, err = parseOptionalUUID(patientRaw, "patient_id"); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	doctorID, err := actingDoctor(who, doctorRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if patientID == nil || doctorID == nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: patient_id and doctor_id are required", errInvalidParam)
	}
	return *patientID, *doctorID, nil
}

func listMessagesHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		patientID, doctorID, err := conversationPair(caller(r), q.Get("patient_id"), q.Get("doctor_id"))
		if err != nil {
			handleError(w, r, err)
			return
		}

		msgs, err := svc.Conversation(r.Context(), patientID, doctorID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		out := make([]MessageResponse, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, toMessageResponse(m))
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": out})
	}
}

func sendMessageHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		who := caller(r)

		patientID, doctorID, err := conversationPair(who, req.PatientID, req.DoctorID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		var sender messaging.Sender
		switch who.Role {
		case auth.RoleDoctor:
			sender = messaging.SenderDoctor
		case auth.RolePatient:
			sender = messaging.SenderPatient
		default:
			if sender, err = messaging.ParseSender(req.Sender); err != nil {
				handleError(w, r, err)
				return
			}
		}

		msg, err := svc.Send(r.Context(), messaging.SendRequest{
			PatientID: patientID,
			DoctorID:  doctorID,
			Sender:    sender,
			Content:   req.Content,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toMessageResponse(*msg))
	}
}

func inboxHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since *time.Time
		if raw := r.URL.Query().Get("since"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				handleError(w, r, fmt.Errorf("%w: since must be RFC3339", errInvalidParam))
				return
			}
			since = &t
		}

		who := caller(r)
		var in messaging.Inbox
		var err error
		switch {
		case who.Role == auth.RoleDoctor && who.DoctorID != nil:
			in, err = svc.DoctorInbox(r.Context(), *who.DoctorID, since)
		case who.Role == auth.RolePatient && who.PatientID != nil:
			in, err = svc.PatientInbox(r.Context(), *who.PatientID, since)
		default:
			err = fmt.Errorf("%w: token carries no doctor or patient id", errForbidden)
		}
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := InboxResponse{Count: in.Count, LatestAt: in.LatestAt}
		if in.Latest != nil {
			m := toMessageResponse(*in.Latest)
			resp.Latest = &m
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// getAnnouncementsHandler lists a doctor's campaigns, or the announcements a
// patient received. A doctor passing target_mode gets a recipient preview.
func getAnnouncementsHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		who := caller(r)
		limit, err := queryInt(r, "limit")
		if err != nil {
			handleError(w, r, err)
			return
		}

		if who.Role == auth.RolePatient {
			if who.PatientID == nil {
				handleError(w, r, fmt.Errorf("%w: token carries no patient id", errForbidden))
				return
			}
			received, err := svc.Received(r.Context(), *who.PatientID, limit)
			if err != nil {
				handleError(w, r, err)
				return
			}
			out := make([]ReceivedResponse, 0, len(received))
			for _, rc := range received {
				out = append(out, ReceivedResponse(rc))
			}
			writeJSON(w, http.StatusOK, map[string]any{"announcements": out})
			return
		}

		doctorID, err := actingDoctor(who, "")
		if err != nil {
			handleError(w, r, err)
			return
		}

		if raw := q.Get("target_mode"); raw != "" {
			mode, err := messaging.ParseTargetMode(raw)
			if err != nil {
				handleError(w, r, err)
				return
			}
			date, err := parseOptionalDate(q.Get("target_date"), "target_date")
			if err != nil {
				handleError(w, r, err)
				return
			}
			n, err := svc.CountTargets(r.Context(), *doctorID, mode, date)
			if err != nil {
				handleError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"target_mode": mode, "recipient_count": n})
			return
		}

		campaigns, err := svc.Campaigns(r.Context(), *doctorID, limit)
		if err != nil {
			handleError(w, r, err)
			return
		}
		out := make([]CampaignResponse, 0, len(campaigns))
		for _, c := range campaigns {
			out = append(out, CampaignResponse{
				ID:             c.ID,
				Message:        c.Message,
				TargetMode:     string(c.TargetMode),
				RecipientCount: c.RecipientCount,
				CreatedAt:      c.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"campaigns": out})
	}
}

func announcementCommand(req AnnouncementRequest) (messaging.Command, error) {
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "", "send":
		mode, err := messaging.ParseTargetMode(req.TargetMode)
		if err != nil {
			return nil, err
		}
		date, err := parseOptionalDate(req.TargetDate, "target_date")
		if err != nil {
			return nil, err
		}
		return messaging.SendAnnouncement{Message: req.Message, TargetMode: mode, TargetDate: date}, nil
	case "resend":
		id, err := parseRequiredUUID(req.CampaignID, "campaign_id")
		if err != nil {
			return nil, err
		}
		return messaging.ResendAnnouncement{CampaignID: id, Message: req.Message}, nil
	}
	return nil, fmt.Errorf("%w: action must be send or resend", errInvalidParam)
}

func postAnnouncementHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnnouncementRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doctorID, err := actingDoctor(caller(r), "")
		if err != nil {
			handleError(w, r, err)
			return
		}
		cmd, err := announcementCommand(req)
		if err != nil {
			handleError(w, r, err)
			return
		}

		out, err := svc.Announce(r.Context(), *doctorID, cmd)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := AnnouncementResponse{
			Sent:       out.Sent,
			CampaignID: out.CampaignID,
			TargetMode: string(out.TargetMode),
			ResentFrom: out.ResentFrom,
		}
		if out.TargetDate != nil {
			d := timeofday.FormatDate(*out.TargetDate)
			resp.TargetDate = &d
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
