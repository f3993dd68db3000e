package activityxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// Format names the XML dialect a project was authored in.
type Format string

const (
	// FormatLegacy is the original <group_activity> document with <activitystage> children.
	FormatLegacy Format = "legacy"
	// FormatNode is the content-node document where every stage is its own element.
	FormatNode Format = "node"
)

const legacyDateLayout = "01/02/2006"

// ErrUnknownRoot is returned when the document root is neither dialect.
var ErrUnknownRoot = errors.New("unrecognised activity document root")

var legacyStageKinds = map[string]models.StageKind{
	"normal":           models.StageKindBasic,
	"completion":       models.StageKindCompletion,
	"upload":           models.StageKindSubmission,
	"peer_review":      models.StageKindTeamEvaluation,
	"group_review":     models.StageKindPeerReview,
	"peer_assessment":  models.StageKindEvaluationDisplay,
	"group_assessment": models.StageKindGradeDisplay,
}

var nodeStageKinds = map[string]models.StageKind{
	"gp-v2-stage-basic":              models.StageKindBasic,
	"gp-v2-stage-completion":         models.StageKindCompletion,
	"gp-v2-stage-submission":         models.StageKindSubmission,
	"gp-v2-stage-team-evaluation":    models.StageKindTeamEvaluation,
	"gp-v2-stage-peer-review":        models.StageKindPeerReview,
	"gp-v2-stage-evaluation-display": models.StageKindEvaluationDisplay,
	"gp-v2-stage-grade-display":      models.StageKindGradeDisplay,
}

// element is a generic XML node used to walk both dialects.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []element  `xml:",any"`
	Inner    string     `xml:",innerxml"`
	Text     string     `xml:",chardata"`
}

func (e element) attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

func (e element) children(name string) []element {
	out := make([]element, 0)
	for _, c := range e.Children {
		if c.XMLName.Local == name {
			out = append(out, c)
		}
	}
	return out
}

func (e element) child(name string) (element, bool) {
	for _, c := range e.Children {
		if c.XMLName.Local == name {
			return c, true
		}
	}
	return element{}, false
}

// Parser turns stored activity XML into the in-memory content tree.
type Parser struct {
	logger zerolog.Logger
	policy *bluemonday.Policy
}

// NewParser builds a parser. Question snippets are sanitised with a UGC policy that keeps form controls.
func NewParser(logger zerolog.Logger) *Parser {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("textarea", "select", "option", "input", "label")
	policy.AllowAttrs("name", "rows", "cols", "placeholder", "type", "value", "selected", "maxlength").
		OnElements("textarea", "select", "option", "input")
	policy.AllowAttrs("for").OnElements("label")

	return &Parser{
		logger: logger.With().Str("component", "activity_xml").Logger(),
		policy: policy,
	}
}

// Parse reads a project document in either dialect. A bare activity document is wrapped
// into a project identified by projectID.
func (p *Parser) Parse(data []byte, projectID string) (models.Project, Format, error) {
	var root element
	if err := xml.Unmarshal(data, &root); err != nil {
		return models.Project{}, "", fmt.Errorf("parse activity xml: %w", err)
	}

	switch root.XMLName.Local {
	case "group_activity":
		activity, err := p.parseLegacyActivity(root)
		if err != nil {
			return models.Project{}, "", err
		}
		if activity.ContentID == "" {
			activity.ContentID = projectID
		}
		return models.Project{
			ID:          projectID,
			DisplayName: activity.DisplayName,
			Activities:  []models.Activity{activity},
		}, FormatLegacy, nil
	case "gp-v2-project":
		project, err := p.parseNodeProject(root)
		if err != nil {
			return models.Project{}, "", err
		}
		if project.ID == "" {
			project.ID = projectID
		}
		return project, FormatNode, nil
	case "gp-v2-activity":
		activity, err := p.parseNodeActivity(root)
		if err != nil {
			return models.Project{}, "", err
		}
		if activity.ContentID == "" {
			activity.ContentID = projectID
		}
		return models.Project{
			ID:          projectID,
			DisplayName: activity.DisplayName,
			Activities:  []models.Activity{activity},
		}, FormatNode, nil
	default:
		return models.Project{}, "", fmt.Errorf("%w: <%s>", ErrUnknownRoot, root.XMLName.Local)
	}
}

func (p *Parser) parseLegacyActivity(root element) (models.Activity, error) {
	activity, err := parseActivityAttrs(root)
	if err != nil {
		return models.Activity{}, err
	}

	for idx, node := range root.children("activitystage") {
		stage := models.Stage{
			ID:          node.attr("id"),
			DisplayName: node.attr("title"),
		}
		if stage.ID == "" {
			stage.ID = fmt.Sprintf("stage_%d", idx+1)
		}

		stageType := strings.ToLower(node.attr("type"))
		if stageType == "" {
			stageType = "normal"
		}
		kind, ok := legacyStageKinds[stageType]
		if !ok {
			return models.Activity{}, fmt.Errorf("stage %q: unknown stage type %q", stage.ID, stageType)
		}
		stage.Kind = kind

		if stage.OpenDate, err = parseLegacyDate(node.attr("open")); err != nil {
			return models.Activity{}, fmt.Errorf("stage %q open date: %w", stage.ID, err)
		}
		if stage.CloseDate, err = parseLegacyDate(node.attr("close")); err != nil {
			return models.Activity{}, fmt.Errorf("stage %q close date: %w", stage.ID, err)
		}

		if content, ok := node.child("content"); ok {
			stage.Content = p.policy.Sanitize(strings.TrimSpace(content.Inner))
		}

		if resources, ok := node.child("resources"); ok {
			for _, doc := range resources.children("document") {
				stage.Resources = append(stage.Resources, models.Resource{
					Title:           doc.attr("title"),
					Description:     doc.attr("description"),
					URL:             strings.TrimSpace(doc.Text),
					GradingCriteria: parseBool(doc.attr("grading_criteria")),
				})
			}
		}

		if submissions, ok := node.child("submissions"); ok {
			for _, doc := range submissions.children("document") {
				stage.Submissions = append(stage.Submissions, models.SubmissionSlot{
					UploadID:    doc.attr("id"),
					DisplayName: doc.attr("title"),
					Description: doc.attr("description"),
				})
			}
		}

		for _, q := range node.children("question") {
			question := models.Question{
				ID:         q.attr("id"),
				Title:      q.attr("title"),
				Required:   parseBool(q.attr("required")),
				Grade:      parseBool(q.attr("grade")),
				SingleLine: parseBool(q.attr("single_line")),
			}
			if answer, ok := q.child("answer"); ok {
				question.Content = p.questionContent(stage.ID, question.ID, answer.Inner)
			}
			stage.Questions = append(stage.Questions, question)
		}

		for _, a := range node.children("assessment") {
			stage.Assessments = append(stage.Assessments, models.Assessment{
				QuestionID: a.attr("id"),
				Title:      a.attr("title"),
				ShowMean:   parseBool(a.attr("show_mean")),
			})
		}

		activity.Stages = append(activity.Stages, stage)
	}

	return activity, nil
}

func (p *Parser) parseNodeProject(root element) (models.Project, error) {
	project := models.Project{
		ID:          root.attr("url_name"),
		DisplayName: root.attr("display_name"),
	}

	for _, child := range root.Children {
		switch child.XMLName.Local {
		case "gp-v2-navigator":
			project.Navigator.DisplayName = child.attr("display_name")
			for _, view := range child.Children {
				project.Navigator.Views = append(project.Navigator.Views, strings.TrimPrefix(view.XMLName.Local, "gp-v2-navigator-"))
			}
		case "gp-v2-activity":
			activity, err := p.parseNodeActivity(child)
			if err != nil {
				return models.Project{}, err
			}
			project.Activities = append(project.Activities, activity)
		}
	}

	return project, nil
}

func (p *Parser) parseNodeActivity(root element) (models.Activity, error) {
	activity, err := parseActivityAttrs(root)
	if err != nil {
		return models.Activity{}, err
	}

	for idx, node := range root.Children {
		kind, ok := nodeStageKinds[node.XMLName.Local]
		if !ok {
			continue
		}

		stage := models.Stage{
			ID:          node.attr("url_name"),
			Kind:        kind,
			DisplayName: node.attr("display_name"),
		}
		if stage.ID == "" {
			stage.ID = fmt.Sprintf("stage_%d", idx+1)
		}
		if stage.OpenDate, err = parseNodeDate(node.attr("open_date")); err != nil {
			return models.Activity{}, fmt.Errorf("stage %q open date: %w", stage.ID, err)
		}
		if stage.CloseDate, err = parseNodeDate(node.attr("close_date")); err != nil {
			return models.Activity{}, fmt.Errorf("stage %q close date: %w", stage.ID, err)
		}

		for _, child := range node.Children {
			switch child.XMLName.Local {
			case "gp-v2-content":
				stage.Content = p.policy.Sanitize(strings.TrimSpace(child.Inner))
			case "gp-v2-resource":
				stage.Resources = append(stage.Resources, models.Resource{
					Title:           child.attr("display_name"),
					Description:     child.attr("description"),
					URL:             child.attr("resource_location"),
					GradingCriteria: parseBool(child.attr("grading_criteria")),
				})
			case "gp-v2-submission":
				stage.Submissions = append(stage.Submissions, models.SubmissionSlot{
					UploadID:    child.attr("upload_id"),
					DisplayName: child.attr("display_name"),
					Description: child.attr("description"),
				})
			case "gp-v2-review-question":
				question := models.Question{
					ID:         child.attr("question_id"),
					Title:      child.attr("title"),
					Required:   parseBool(child.attr("required")),
					Grade:      parseBool(child.attr("grade")),
					SingleLine: parseBool(child.attr("single_line")),
				}
				if content, ok := child.child("question_content"); ok {
					question.Content = p.questionContent(stage.ID, question.ID, content.Inner)
				} else if raw := child.attr("question_content"); raw != "" {
					question.Content = p.questionContent(stage.ID, question.ID, raw)
				}
				stage.Questions = append(stage.Questions, question)
			case "gp-v2-peer-assessment", "gp-v2-group-assessment":
				stage.Assessments = append(stage.Assessments, models.Assessment{
					QuestionID: child.attr("question_id"),
					Title:      child.attr("title"),
					ShowMean:   parseBool(child.attr("show_mean")),
				})
			}
		}

		activity.Stages = append(activity.Stages, stage)
	}

	return activity, nil
}

// questionContent checks that the stored snippet is well formed. A broken snippet is logged and
// rendered as empty content so the stage keeps working.
func (p *Parser) questionContent(stageID, questionID, snippet string) string {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return ""
	}

	decoder := xml.NewDecoder(strings.NewReader("<question_content>" + snippet + "</question_content>"))
	for {
		_, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.logger.Warn().Err(err).
				Str("stage_id", stageID).
				Str("question_id", questionID).
				Msg("invalid question content, rendering empty")
			return ""
		}
	}

	return strings.TrimSpace(p.policy.Sanitize(snippet))
}

// Activity attribute defaults applied when the attribute is absent. An explicit
// group_reviews_required_count="0" still marks the activity TA-graded.
const (
	DefaultActivityWeight            = 100
	DefaultGroupReviewsRequiredCount = 3
	DefaultUserReviewCount           = 1
)

func parseActivityAttrs(root element) (models.Activity, error) {
	activity := models.Activity{
		ContentID:                 root.attr("url_name"),
		DisplayName:               root.attr("display_name"),
		Weight:                    DefaultActivityWeight,
		GroupReviewsRequiredCount: DefaultGroupReviewsRequiredCount,
		UserReviewCount:           DefaultUserReviewCount,
	}

	var err error
	if raw := root.attr("weight"); raw != "" {
		if activity.Weight, err = strconv.ParseFloat(raw, 64); err != nil {
			return models.Activity{}, fmt.Errorf("invalid weight %q: %w", raw, err)
		}
	}
	if raw := root.attr("group_reviews_required_count"); raw != "" {
		if activity.GroupReviewsRequiredCount, err = strconv.Atoi(raw); err != nil {
			return models.Activity{}, fmt.Errorf("invalid group_reviews_required_count %q: %w", raw, err)
		}
	}
	if raw := root.attr("user_review_count"); raw != "" {
		if activity.UserReviewCount, err = strconv.Atoi(raw); err != nil {
			return models.Activity{}, fmt.Errorf("invalid user_review_count %q: %w", raw, err)
		}
	}

	return activity, nil
}

func parseLegacyDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(legacyDateLayout, raw, time.UTC)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseNodeDate(raw string) (*time.Time, error) {
	if raw == "" || strings.EqualFold(raw, "none") {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	parsed = parsed.UTC()
	return &parsed, nil
}

func parseBool(raw string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && value
}

// Sniff reports the dialect of a document without fully parsing it.
func Sniff(data []byte) (Format, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := decoder.Token()
		if err != nil {
			return "", fmt.Errorf("sniff activity xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "group_activity":
			return FormatLegacy, nil
		case "gp-v2-project", "gp-v2-activity":
			return FormatNode, nil
		default:
			return "", fmt.Errorf("%w: <%s>", ErrUnknownRoot, start.Name.Local)
		}
	}
}
