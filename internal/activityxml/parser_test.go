package activityxml

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

const legacyDocument = `<?xml version="1.0"?>
<group_activity url_name="act-1" display_name="Market research" weight="100" group_reviews_required_count="2" user_review_count="1">
  <activitystage id="overview" title="Overview" type="normal" open="01/10/2024">
    <resources>
      <document title="Brief" description="Read first">https://files.test/brief.pdf</document>
      <document title="Rubric" grading_criteria="true">https://files.test/rubric.pdf</document>
    </resources>
  </activitystage>
  <activitystage id="upload" title="Upload" type="upload" open="01/15/2024" close="01/30/2024">
    <submissions>
      <document id="report" title="Report" description="Final report"/>
      <document id="slides" title="Slides"/>
    </submissions>
  </activitystage>
  <activitystage id="team" title="Team review" type="peer_review">
    <question id="team_q1" title="Contribution" required="true"><answer><p>Describe</p></answer></question>
  </activitystage>
  <activitystage id="group" title="Group review" type="group_review">
    <question id="score_1" title="Quality" required="true" grade="true"><answer><p>Score</p></answer></question>
    <question id="score_2" title="Depth" required="true" grade="true"/>
    <question id="comment" title="Comment"/>
  </activitystage>
  <activitystage id="team_feedback" type="peer_assessment">
    <assessment id="team_q1" title="Contribution" show_mean="false"/>
  </activitystage>
  <activitystage id="grade" type="group_assessment">
    <assessment id="score_1" show_mean="true"/>
  </activitystage>
</group_activity>`

const nodeDocument = `<?xml version="1.0"?>
<gp-v2-project url_name="proj-1" display_name="Project">
  <gp-v2-navigator display_name="Navigator">
    <gp-v2-navigator-navigation/>
    <gp-v2-navigator-resources/>
  </gp-v2-navigator>
  <gp-v2-activity url_name="act-1" display_name="Market research" weight="100" group_reviews_required_count="2" user_review_count="1">
    <gp-v2-stage-basic url_name="overview" display_name="Overview" open_date="2024-01-10T00:00:00Z">
      <gp-v2-resource display_name="Brief" description="Read first" resource_location="https://files.test/brief.pdf"/>
      <gp-v2-resource display_name="Rubric" resource_location="https://files.test/rubric.pdf" grading_criteria="true"/>
    </gp-v2-stage-basic>
    <gp-v2-stage-submission url_name="upload" display_name="Upload" open_date="2024-01-15T00:00:00Z" close_date="2024-01-30T00:00:00Z">
      <gp-v2-submission upload_id="report" display_name="Report" description="Final report"/>
      <gp-v2-submission upload_id="slides" display_name="Slides"/>
    </gp-v2-stage-submission>
    <gp-v2-stage-team-evaluation url_name="team" display_name="Team review">
      <gp-v2-review-question question_id="team_q1" title="Contribution" required="true"><question_content><p>Describe</p></question_content></gp-v2-review-question>
    </gp-v2-stage-team-evaluation>
    <gp-v2-stage-peer-review url_name="group" display_name="Group review">
      <gp-v2-review-question question_id="score_1" title="Quality" required="true" grade="true"><question_content><p>Score</p></question_content></gp-v2-review-question>
      <gp-v2-review-question question_id="score_2" title="Depth" required="true" grade="true"/>
      <gp-v2-review-question question_id="comment" title="Comment"/>
    </gp-v2-stage-peer-review>
    <gp-v2-stage-evaluation-display url_name="team_feedback">
      <gp-v2-peer-assessment question_id="team_q1" title="Contribution"/>
    </gp-v2-stage-evaluation-display>
    <gp-v2-stage-grade-display url_name="grade">
      <gp-v2-group-assessment question_id="score_1" show_mean="true"/>
    </gp-v2-stage-grade-display>
  </gp-v2-activity>
</gp-v2-project>`

func testParser() *Parser {
	return NewParser(zerolog.New(io.Discard))
}

func TestParseLegacyDocument(t *testing.T) {
	project, format, err := testParser().Parse([]byte(legacyDocument), "proj-1")
	require.NoError(t, err)
	require.Equal(t, FormatLegacy, format)
	require.Equal(t, "proj-1", project.ID)
	require.Len(t, project.Activities, 1)

	activity := project.Activities[0]
	require.Equal(t, "act-1", activity.ContentID)
	require.Equal(t, 100.0, activity.Weight)
	require.Equal(t, 2, activity.GroupReviewsRequiredCount)
	require.Equal(t, 1, activity.UserReviewCount)

	kinds := make([]models.StageKind, 0, len(activity.Stages))
	for _, stage := range activity.Stages {
		kinds = append(kinds, stage.Kind)
	}
	require.Equal(t, []models.StageKind{
		models.StageKindBasic,
		models.StageKindSubmission,
		models.StageKindTeamEvaluation,
		models.StageKindPeerReview,
		models.StageKindEvaluationDisplay,
		models.StageKindGradeDisplay,
	}, kinds)

	upload := activity.Stages[1]
	require.Equal(t, []string{"report", "slides"}, upload.UploadIDs())
	require.NotNil(t, upload.OpenDate)
	require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *upload.OpenDate)
	require.Equal(t, time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), *upload.CloseDate)

	require.Equal(t, "https://files.test/brief.pdf", activity.Stages[0].Resources[0].URL)
	require.True(t, activity.Stages[0].Resources[1].GradingCriteria)

	require.Equal(t, []string{"score_1", "score_2"}, activity.GradeQuestionIDs())
	require.Equal(t, "<p>Score</p>", activity.Stages[3].Questions[0].Content)
}

func TestLegacyAndNodeFormsParseToSameStages(t *testing.T) {
	parser := testParser()

	legacy, _, err := parser.Parse([]byte(legacyDocument), "proj-1")
	require.NoError(t, err)
	node, format, err := parser.Parse([]byte(nodeDocument), "ignored")
	require.NoError(t, err)
	require.Equal(t, FormatNode, format)
	require.Equal(t, "proj-1", node.ID)
	require.Equal(t, []string{"navigation", "resources"}, node.Navigator.Views)

	require.Equal(t, legacy.Activities[0].Stages, node.Activities[0].Stages)
}

func TestExportRoundTrip(t *testing.T) {
	parser := testParser()

	cases := []struct {
		name   string
		doc    string
		format Format
	}{
		{name: "legacy", doc: legacyDocument, format: FormatLegacy},
		{name: "node", doc: nodeDocument, format: FormatNode},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, _, err := parser.Parse([]byte(tc.doc), "proj-1")
			require.NoError(t, err)

			exported, err := Export(first, tc.format)
			require.NoError(t, err)

			second, format, err := parser.Parse(exported, "proj-1")
			require.NoError(t, err)
			require.Equal(t, tc.format, format)
			require.Equal(t, first.Activities, second.Activities)
		})
	}
}

func TestExportLegacyRejectsMultipleActivities(t *testing.T) {
	project := models.Project{ID: "p", Activities: []models.Activity{{ContentID: "a"}, {ContentID: "b"}}}
	_, err := Export(project, FormatLegacy)
	require.Error(t, err)
}

func TestInvalidQuestionContentRendersEmpty(t *testing.T) {
	doc := `<gp-v2-activity url_name="act">
  <gp-v2-stage-peer-review url_name="review">
    <gp-v2-review-question question_id="q1" required="true" question_content="&lt;p&gt;unclosed"/>
  </gp-v2-stage-peer-review>
</gp-v2-activity>`

	project, _, err := testParser().Parse([]byte(doc), "proj")
	require.NoError(t, err)
	question := project.Activities[0].Stages[0].Questions[0]
	require.Equal(t, "q1", question.ID)
	require.Empty(t, question.Content)
}

func TestQuestionContentIsSanitised(t *testing.T) {
	doc := `<gp-v2-activity url_name="act">
  <gp-v2-stage-peer-review url_name="review">
    <gp-v2-review-question question_id="q1"><question_content><p>Rate</p><script>alert(1)</script></question_content></gp-v2-review-question>
  </gp-v2-stage-peer-review>
</gp-v2-activity>`

	project, _, err := testParser().Parse([]byte(doc), "proj")
	require.NoError(t, err)
	require.Equal(t, "<p>Rate</p>", project.Activities[0].Stages[0].Questions[0].Content)
}

func TestParseRejectsUnknownDocuments(t *testing.T) {
	_, _, err := testParser().Parse([]byte(`<course/>`), "proj")
	require.ErrorIs(t, err, ErrUnknownRoot)

	_, _, err = testParser().Parse([]byte(`<group_activity><activitystage type="quiz"/></group_activity>`), "proj")
	require.Error(t, err)

	_, _, err = testParser().Parse([]byte(`<group_activity><activitystage type="upload" open="2024-01-01"/></group_activity>`), "proj")
	require.Error(t, err)
}

func TestSniff(t *testing.T) {
	format, err := Sniff([]byte(legacyDocument))
	require.NoError(t, err)
	require.Equal(t, FormatLegacy, format)

	format, err = Sniff([]byte(nodeDocument))
	require.NoError(t, err)
	require.Equal(t, FormatNode, format)
}

func TestActivityAttributeDefaults(t *testing.T) {
	const bare = `<group_activity url_name="act1">
  <activitystage id="review" type="group_review">
    <question id="q1" title="Quality" required="true" grade="true"/>
  </activitystage>
</group_activity>`

	project, _, err := testParser().Parse([]byte(bare), "proj-1")
	require.NoError(t, err)
	activity := project.Activities[0]
	require.Equal(t, float64(DefaultActivityWeight), activity.Weight)
	require.Equal(t, DefaultGroupReviewsRequiredCount, activity.GroupReviewsRequiredCount)
	require.Equal(t, DefaultUserReviewCount, activity.UserReviewCount)
	require.False(t, activity.TAGraded())

	const taGraded = `<group_activity url_name="act1" group_reviews_required_count="0" weight="0">
  <activitystage id="review" type="group_review">
    <question id="q1" title="Quality" required="true" grade="true"/>
  </activitystage>
</group_activity>`

	project, _, err = testParser().Parse([]byte(taGraded), "proj-1")
	require.NoError(t, err)
	activity = project.Activities[0]
	require.True(t, activity.TAGraded())
	require.Zero(t, activity.Weight)

	exported, err := Export(project, FormatLegacy)
	require.NoError(t, err)
	again, _, err := testParser().Parse(exported, "proj-1")
	require.NoError(t, err)
	require.True(t, again.Activities[0].TAGraded())
}
