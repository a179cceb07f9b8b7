package worker

import (
	"github.com/spec-kit/project-service/internal/service"
)

// StartAuditWorker registers login audit handlers.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
