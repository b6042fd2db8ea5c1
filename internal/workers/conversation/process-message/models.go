package processmessage

// Input are the job variables read by the worker.
type Input struct {
	Message     string   `json:"message"`
	SessionID   string   `json:"sessionId"`
	WorkshopID  string   `json:"workshopId"`
	UserID      string   `json:"userId"`
	Permissions []string `json:"permissions"`
}

// Output is merged into the process instance variables.
type Output struct {
	Success              bool     `json:"success"`
	ResponseText         string   `json:"responseText"`
	Suggestions          []string `json:"suggestions"`
	Intent               string   `json:"intent"`
	Confidence           float64  `json:"confidence"`
	RequiresConfirmation bool     `json:"requiresConfirmation"`
	ActionsSucceeded     int      `json:"actionsSucceeded"`
	ActionsFailed        int      `json:"actionsFailed"`
	ErrorCode            string   `json:"errorCode,omitempty"`
}
