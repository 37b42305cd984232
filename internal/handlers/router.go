package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/quizdeck/quiz-service/internal/config"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/services"
	"github.com/quizdeck/quiz-service/internal/utils"
	"github.com/quizdeck/quiz-service/internal/validator"
)

type HandlerManager struct {
	classHandler     *ClassHandler
	quizHandler      *QuizHandler
	attemptHandler   *AttemptHandler
	gradingHandler   *GradingHandler
	dashboardHandler *DashboardHandler
	authMiddleware   *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		classHandler:     NewClassHandler(serviceManager.Class(), serviceManager.Roster(), validator, logger),
		quizHandler:      NewQuizHandler(serviceManager.Quiz(), validator, logger),
		attemptHandler:   NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		gradingHandler:   NewGradingHandler(serviceManager.Grading(), validator, logger),
		dashboardHandler: NewDashboardHandler(serviceManager.Dashboard(), serviceManager.Roster(), logger),
		authMiddleware:   authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	teacherOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Class routes
		classes := v1.Group("/classes")
		{
			classes.POST("", teacherOnly, hm.classHandler.CreateClass)
			classes.PUT("/:id", teacherOnly, hm.classHandler.UpdateClass)
			classes.DELETE("/:id", teacherOnly, hm.classHandler.DeleteClass)

			classes.GET("", hm.classHandler.ListClasses)
			classes.GET("/enrolled", hm.classHandler.GetEnrolledClasses)
			classes.GET("/:id", hm.classHandler.GetClass)
			classes.GET("/:id/stats", teacherOnly, hm.classHandler.GetClassStats)

			// Roster management
			classes.GET("/:id/roster", hm.classHandler.GetRoster)
			classes.POST("/:id/roster", teacherOnly, hm.classHandler.EnrollStudents)
			classes.DELETE("/:id/roster/:student_id", teacherOnly, hm.classHandler.UnenrollStudent)
			classes.POST("/:id/roster/import", teacherOnly, hm.classHandler.ImportRoster)
			classes.GET("/:id/roster/export", teacherOnly, hm.classHandler.ExportRoster)

			// Quizzes of a class
			classes.GET("/:id/quizzes", hm.quizHandler.GetQuizzesByClass)
		}

		// Quiz routes
		quizzes := v1.Group("/quizzes")
		{
			quizzes.POST("", teacherOnly, hm.quizHandler.CreateQuiz)
			quizzes.PUT("/:id", teacherOnly, hm.quizHandler.UpdateQuiz)
			quizzes.DELETE("/:id", teacherOnly, hm.quizHandler.DeleteQuiz)
			quizzes.POST("/:id/publish", teacherOnly, hm.quizHandler.PublishQuiz)
			quizzes.POST("/:id/close", teacherOnly, hm.quizHandler.CloseQuiz)

			quizzes.GET("", hm.quizHandler.ListQuizzes)
			quizzes.GET("/:id", hm.quizHandler.GetQuiz)
			quizzes.GET("/:id/details", teacherOnly, hm.quizHandler.GetQuizWithQuestions)
			quizzes.GET("/:id/stats", teacherOnly, hm.quizHandler.GetQuizStats)

			// Question management
			quizzes.GET("/:id/questions", teacherOnly, hm.quizHandler.GetQuestions)
			quizzes.POST("/:id/questions", teacherOnly, hm.quizHandler.AddQuestion)
			quizzes.PUT("/:id/questions/:question_id", teacherOnly, hm.quizHandler.UpdateQuestion)
			quizzes.DELETE("/:id/questions/:question_id", teacherOnly, hm.quizHandler.RemoveQuestion)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("", hm.attemptHandler.GetMyAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.GET("/:id/details", hm.attemptHandler.GetAttemptWithDetails)
			attempts.POST("/:id/resume", hm.attemptHandler.ResumeAttempt)
			attempts.POST("/:id/answer", hm.attemptHandler.SaveAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)
			attempts.POST("/:id/timeout", hm.attemptHandler.HandleTimeout)

			// Quiz-specific routes
			attempts.GET("/current/:quiz_id", hm.attemptHandler.GetCurrentAttempt)
			attempts.GET("/can-start/:quiz_id", hm.attemptHandler.CanStartAttempt)
			attempts.GET("/count/:quiz_id", hm.attemptHandler.GetAttemptCount)
			attempts.GET("/quiz/:quiz_id", teacherOnly, hm.attemptHandler.GetAttemptsByQuiz)
		}

		// Grading routes - Teachers and Admins only
		grading := v1.Group("/grading")
		grading.Use(teacherOnly)
		{
			grading.POST("/answers/:answer_id", hm.gradingHandler.GradeEssayAnswer)
			grading.GET("/quizzes/:quiz_id/pending", hm.gradingHandler.GetPendingManual)
			grading.GET("/quizzes/:quiz_id/overview", hm.gradingHandler.GetGradingOverview)

			// Re-grading
			grading.POST("/attempts/:attempt_id/recalculate", hm.gradingHandler.RecalculateAttempt)
			grading.POST("/quizzes/:quiz_id/recalculate", hm.gradingHandler.RecalculateQuiz)
		}

		// Dashboard routes - Teachers and Admins only
		dashboard := v1.Group("/dashboard")
		dashboard.Use(teacherOnly)
		{
			dashboard.GET("/overview", hm.dashboardHandler.GetOverview)
			dashboard.GET("/quizzes/:quiz_id/results", hm.dashboardHandler.GetQuizResults)
			dashboard.GET("/quizzes/:quiz_id/results/export", hm.dashboardHandler.ExportQuizResults)
			dashboard.GET("/activity-trends", hm.dashboardHandler.GetActivityTrends)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "quiz-service",
		})
	})
}
