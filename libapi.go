package resourceflow

import (
	runtimepkg "github.com/drblury/resourceflow/internal/runtime"
	configpkg "github.com/drblury/resourceflow/internal/runtime/config"
	"github.com/drblury/resourceflow/internal/runtime/correlation"
	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
	"github.com/drblury/resourceflow/internal/runtime/events"
	idspkg "github.com/drblury/resourceflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/resourceflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
	"github.com/drblury/resourceflow/internal/runtime/outbound"
	"github.com/drblury/resourceflow/internal/runtime/resource"
	transportpkg "github.com/drblury/resourceflow/internal/runtime/transport"
	newtransport "github.com/drblury/resourceflow/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	TransportFactory    = transportpkg.Factory

	Resource      = resource.Entity
	ResourceInput = resource.Input
	ResourceStore = resource.Store
	PageRequest   = resource.PageRequest
	Page[T any]   = resource.Page[T]

	Event            = events.Event
	EventProcessor   = events.Processor
	ProcessorFunc    = events.ProcessorFunc
	ProcessedSet     = events.ProcessedSet
	PublishResult    = events.Result
	DeadLetterError  = events.DeadLetterError
	Delivery         = runtimepkg.Delivery
	DeliveryHooks    = runtimepkg.DeliveryHooks
	OutboundClient   = outbound.Client
	OutboundResponse = outbound.Response

	Error          = errspkg.Error
	ErrorKind      = errspkg.Kind
	FieldViolation = errspkg.FieldViolation
	ErrorCategory  = runtimepkg.ErrorCategory

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	HandlerInfo        = runtimepkg.HandlerInfo
	HandlerStats       = runtimepkg.HandlerStats
	DLQMetrics         = runtimepkg.DLQMetrics
	DLQTopicMetrics    = runtimepkg.DLQTopicMetrics
	DLQMetricsSnapshot = runtimepkg.DLQMetricsSnapshot

	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	DefaultConfig  = configpkg.Default
	LoadConfig     = configpkg.Load
	LoadConfigFile = configpkg.LoadFile
	ValidateConfig = configpkg.ValidateConfig

	LoggingHooks  = runtimepkg.LoggingHooks
	ClassifyError = runtimepkg.ClassifyError

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewContextHandler    = loggingpkg.NewContextHandler
	ParseLogLevel        = loggingpkg.ParseLevel

	NewOutboundClient = outbound.NewClient
	WithBaseURL       = outbound.WithBaseURL

	CorrelationIDFromContext = correlation.FromContext
	WithCorrelationID        = correlation.WithID

	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	ErrSkip           = events.ErrSkip
	ErrDeadLetter     = events.ErrDeadLetter
	ErrStoreRequired  = errspkg.ErrStoreRequired
	ErrLoggerRequired = errspkg.ErrLoggerRequired

	CreateULID = idspkg.CreateULID
)

const (
	CorrelationHeader     = correlation.HeaderName
	MetadataCorrelationID = correlation.MetadataKey
	MetadataEventType     = events.MetadataEventType

	EventResourceCreated  = resource.EventCreated
	EventResourceUpdated  = resource.EventUpdated
	EventResourceDeleted  = resource.EventDeleted
	DefaultResourceStatus = resource.StatusActive

	ErrorCategoryDeadLetter = runtimepkg.ErrorCategoryDeadLetter
)
